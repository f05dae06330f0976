/*
Package discovery turns a non-blocking "is the port known yet" query into a bounded
wait with a definite outcome.

A Client is built once with a Capability chosen at startup: IPC (query a live
supervisor) or FileFallback (read a record a worker persisted). Each call to Start
creates a Session that polls on a fixed interval until a port is found, the attempt
budget is exhausted, or the session is cancelled.

	q := sup // *supervisor.Supervisor implements ports.PortQuerier
	capability, err := discovery.Select(q, portfile.New(""))
	if err != nil {
		return err
	}
	session := discovery.NewClient(capability).Start(ctx)
	defer session.Cancel()

	port, err := session.Wait(ctx)

Individual attempt failures never surface to the consumer; only the terminal
ready/error state does.
*/
package discovery
