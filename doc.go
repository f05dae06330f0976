/*
Package sidecar implements a race-free port-discovery handshake between a host application and a backend worker it spawns.

The worker binds an OS-assigned port, so the host cannot know it in advance. The worker announces the port once, as a "SIDECAR_PORT:<port>" line on stdout and as a decimal value in a well-known temp file. The host's supervisor captures the line and answers a non-blocking "is the port known yet" query. A discovery client polls that query on a bounded schedule and exposes a loading, ready(port) or error(reason) status to the consumer.

# Packages

  - pkg/worker: binds, announces, serves and shuts down cleanly.
  - pkg/supervisor: spawns the worker and caches its announced port.
  - pkg/discovery: the bounded polling client (500ms interval, 30 attempts).
  - pkg/portfile: the filesystem fallback channel.
  - pkg/schedule: cancellable scheduled tasks, with a manual clock for tests.

# Usage

A host spawns the worker and waits for its port:

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/sidecar/pkg/discovery"
		"github.com/aretw0/sidecar/pkg/portfile"
		"github.com/aretw0/sidecar/pkg/supervisor"
	)

	func main() {
		ctx := context.Background()

		sup := supervisor.New("sidecar", []string{"worker"})
		if _, err := sup.Start(ctx); err != nil {
			log.Fatal(err)
		}
		defer sup.Stop(ctx)

		capability, err := discovery.Select(sup, portfile.New(""))
		if err != nil {
			log.Fatal(err)
		}

		port, err := discovery.Discover(ctx, capability)
		if err != nil {
			log.Fatal(err) // sidecar did not start in time
		}
		log.Printf("worker at %s", discovery.BaseURL(port))
	}

The sidecar command wraps all of this: "sidecar worker" runs the worker and "sidecar host -- <cmd>" supervises one.
*/
package sidecar
