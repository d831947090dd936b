package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/searchgo"
	"github.com/hupe1980/searchgo/updatelog"
)

// printIndexes applies updates by printing them. A real integration would
// feed the payload into the search index here.
type printIndexes struct{}

func (printIndexes) ProcessUpdate(_ context.Context, status updatelog.Status, payload io.Reader) error {
	size := 0
	if payload != nil {
		data, err := io.ReadAll(payload)
		if err != nil {
			return err
		}
		size = len(data)
	}

	fmt.Printf("applied update %d (%s) with %d payload bytes\n", status.ID, status.Meta.Kind, size)

	return nil
}

func (printIndexes) SnapshotIndex(_ context.Context, collection uuid.UUID, path string) error {
	fmt.Printf("snapshot of %s into %s\n", collection, path)
	return nil
}

func (printIndexes) DumpIndex(_ context.Context, collection uuid.UUID, path string) error {
	fmt.Printf("dump of %s into %s\n", collection, path)
	return nil
}

func main() {
	dir, err := os.MkdirTemp("", "searchgo")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	coordinator, handle, err := searchgo.New(dir, printIndexes{})
	if err != nil {
		log.Fatal(err)
	}

	go coordinator.Run()
	defer handle.Close()

	ctx := context.Background()
	collection := uuid.New()

	payload := make(chan searchgo.Chunk, 1)
	payload <- searchgo.Chunk{Data: []byte(`[{"id":1,"title":"moby dick"},{"id":2,"title":"the trial"}]`)}
	close(payload)

	status, err := handle.Update(ctx, collection, updatelog.Meta{
		Kind:   updatelog.KindDocumentsAddition,
		Method: updatelog.MethodReplace,
		Format: updatelog.FormatJSON,
	}, payload)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("enqueued update %d for %s\n", status.ID, collection)

	// Give the applier a moment before inspecting the record.
	time.Sleep(200 * time.Millisecond)

	final, err := handle.GetUpdate(ctx, collection, status.ID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("update %d is now %s\n", final.ID, final.State)

	stats, err := handle.Stats(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("log holds %d processed and %d failed updates in %d bytes\n",
		stats.Processed, stats.Failed, stats.DBSizeBytes)
}
