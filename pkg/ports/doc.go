/*
Package ports defines the driven ports (interfaces) of the sidecar discovery handshake.

These interfaces decouple the discovery client from the concrete announcement channels,
so the same retry discipline works against a live supervisor, the fallback port file
or a shared registry.

# Key Interfaces

  - PortQuerier: The primary, non-blocking "is the port known yet" query.
  - RecordReader: A passive fallback channel a worker wrote its PortRecord to.
  - RecordPublisher: A channel a worker announces its PortRecord on.
*/
package ports
