// Package searchgo implements the update-ingestion coordinator of a document
// search engine: the single gatekeeper through which every mutation to a
// collection (document additions, deletions, settings changes) is accepted,
// durably queued, validated, and handed to a persistent update log.
//
// The [Coordinator] is an actor: one goroutine owns the update log handle,
// receives operation requests from an inbox, and processes them strictly in
// arrival order, offloading blocking work (file I/O, JSON validation, store
// calls) to a bounded worker gate. Callers talk to it through a [Handle]:
//
//	coordinator, handle, err := searchgo.New(dir, indexes)
//	if err != nil {
//		log.Fatal(err)
//	}
//	go coordinator.Run()
//
//	payload := make(chan searchgo.Chunk, 1)
//	payload <- searchgo.Chunk{Data: []byte(`{"id":1,"title":"Dune"}`)}
//	close(payload)
//
//	status, err := handle.Update(ctx, collection, updatelog.Meta{
//		Kind:   updatelog.KindDocumentsAddition,
//		Method: updatelog.MethodReplace,
//		Format: updatelog.FormatJSON,
//	}, payload)
//
// Document payloads are streamed chunk by chunk into a blob file and checked
// for JSON well-formedness in two phases: a streaming structural check that
// retains nothing, with a full parse run only to produce a precise diagnostic
// once the payload is already known to be broken.
package searchgo
