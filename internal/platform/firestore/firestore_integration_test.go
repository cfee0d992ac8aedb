package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/config"
	pfirestore "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/firestore"
)

type sampleEntity struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func emulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "test-project", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestCollectionRoundTripAgainstEmulator(t *testing.T) {
	provider := emulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	coll := pfirestore.NewCollection[sampleEntity](provider, "samples_"+time.Now().Format("150405.000000"))

	if _, err := coll.Set(ctx, "b", sampleEntity{Name: "beta", Count: 2}); err != nil {
		t.Fatalf("set b: %v", err)
	}
	if _, err := coll.Set(ctx, "a", sampleEntity{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("set a: %v", err)
	}

	doc, err := coll.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if doc.Data.Name != "alpha" || doc.Data.Count != 1 {
		t.Fatalf("unexpected document %+v", doc.Data)
	}

	docs, err := coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("count", firestore.Asc)
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
		t.Fatalf("unexpected query result %+v", docs)
	}

	_, err = coll.Get(ctx, "missing")
	var fsErr *pfirestore.Error
	if !errors.As(err, &fsErr) || !fsErr.IsNotFound() {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestRunTransactionAgainstEmulator(t *testing.T) {
	provider := emulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	coll := pfirestore.NewCollection[sampleEntity](provider, "tx_samples_"+time.Now().Format("150405.000000"))

	for i := 0; i < 3; i++ {
		err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			current, ok, err := coll.GetTx(ctx, tx, "counter")
			if err != nil {
				return err
			}
			next := sampleEntity{Name: "counter", Count: 1}
			if ok {
				next.Count = current.Data.Count + 1
			}
			return coll.SetTx(ctx, tx, "counter", next)
		})
		if err != nil {
			t.Fatalf("transaction %d: %v", i, err)
		}
	}

	doc, err := coll.Get(ctx, "counter")
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if doc.Data.Count != 3 {
		t.Fatalf("expected count 3, got %d", doc.Data.Count)
	}
}
