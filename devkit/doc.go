// Package devkit contains test doubles and canonical fixtures shared by the
// client, adapter, and job tests: a scripted transport, response builders,
// and a signed webhook delivery matching the documented issue_new payload.
package devkit
