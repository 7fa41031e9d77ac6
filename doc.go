// Package pylon is a client for the Pylon customer support API.
//
// A Client is built from a core.Config and exposes one service per API
// resource (Issues, Accounts, Contacts, Users, Teams, Tags, AuditLogs). All
// services share a single transport, so retries, rate-limit pacing, and
// instrumentation behave uniformly:
//
//	client, err := pylon.NewClient(core.Config{APIKey: "pylon_api_..."})
//	if err != nil {
//		return err
//	}
//	issues, err := client.Issues().List(pylon.ListIssuesOptions{Days: 7})
//	if err != nil {
//		return err
//	}
//	for {
//		issue, err := issues.Next(ctx)
//		if errors.Is(err, paginate.ErrDone) {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		fmt.Println(issue.Number, issue.Title)
//	}
//
// List and Search return cursor iterators from the paginate package; Collect
// and Stream cover the common drain patterns, and checkpoint stores let long
// syncs resume mid-listing. Inbound webhook verification and dispatch live in
// the webhooks package.
package pylon
