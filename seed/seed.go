// Package seed reconciles an authorization store against a declared target
// state: a store name, a canonical model schema and a desired tuple set.
// It is meant for bootstrap and seeding workflows, not as a transactional
// production path.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/samber/lo"

	"github.com/trevex/ofga"
)

// Reconciler brings a remote store and its tuple set into the declared
// target state. All fields except Defaults and Log are required.
type Reconciler struct {
	Client    *ofga.Client
	StoreName string
	// Model is the canonical JSON schema to publish, e.g. produced by
	// [TransformModel].
	Model json.RawMessage
	// Tuples is the desired tuple set, e.g. loaded by [LoadTupleFile].
	Tuples []ofga.TupleKey
	// Defaults, when set, receives the resolved store and model id.
	Defaults *ofga.Defaults
	Log      *slog.Logger
}

// Apply runs the reconciliation: find-or-create the store, publish a new
// model version, then replace the store's tuple set with the desired one.
//
// The replacement reads the complete current tuple set, deletes it
// (missing-tolerant) and writes the desired set (duplicate-tolerant). These
// steps are not atomic: a failure between delete and write leaves the store
// with neither the old nor the new tuples. Re-running Apply converges, so
// treat any failure as "state unknown" and apply again.
func (r *Reconciler) Apply(ctx context.Context) error {
	log := r.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := r.Client.EnsureStore(ctx, r.StoreName)
	if err != nil {
		return fmt.Errorf("ensuring store %q: %w", r.StoreName, err)
	}
	log.Info("store resolved", slog.String("store_id", store.ID), slog.String("name", store.Name))

	modelID, err := r.Client.CreateModel(ctx, store.ID, r.Model)
	if err != nil {
		return fmt.Errorf("publishing authorization model: %w", err)
	}
	log.Info("authorization model published", slog.String("model_id", modelID))
	if r.Defaults != nil {
		r.Defaults.Set(store.ID, modelID)
	}

	current, err := r.Client.ReadTuples(ctx, ofga.TupleKey{}, ofga.ReadOptions{StoreID: store.ID})
	if err != nil {
		return fmt.Errorf("reading current tuples: %w", err)
	}
	existing := lo.Map(current, func(t ofga.Tuple, _ int) ofga.TupleKey { return t.Key })
	if err := r.Client.DeleteTuples(ctx, existing, ofga.DeleteOptions{StoreID: store.ID, ModelID: modelID}); err != nil {
		return fmt.Errorf("deleting current tuples: %w", err)
	}
	if err := r.Client.WriteTuples(ctx, r.Tuples, ofga.WriteOptions{StoreID: store.ID, ModelID: modelID}); err != nil {
		return fmt.Errorf("writing seed tuples: %w", err)
	}
	log.Info("tuples replaced",
		slog.Int("deleted", len(existing)),
		slog.Int("written", len(r.Tuples)))
	return nil
}

// TransformModel runs the external `fga` CLI to turn a model description
// file into its canonical JSON form (sorted keys), suitable for
// [Reconciler.Model].
func TransformModel(ctx context.Context, modelFile string) (json.RawMessage, error) {
	out, err := exec.CommandContext(ctx, "fga", "model", "transform", "--file", modelFile, "--output-format", "json").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("transforming %s: %w: %s", modelFile, err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("transforming %s: %w", modelFile, err)
	}
	return Canonicalize(out)
}

// Canonicalize re-encodes raw JSON with sorted object keys, so two
// equivalent schemas compare byte-equal.
func Canonicalize(raw []byte) (json.RawMessage, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding model JSON: %w", err)
	}
	return json.Marshal(decoded)
}

// LoadTupleFile reads a seed file: a JSON array of {user, relation, object}
// objects.
func LoadTupleFile(path string) ([]ofga.TupleKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys []ofga.TupleKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decoding tuple file %s: %w", path, err)
	}
	return keys, nil
}
