package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"platescan/internal/adapters/sqlite"
	"platescan/internal/domain"
	"platescan/internal/plate"
	"platescan/internal/ports"
	"platescan/internal/preprocess"
	"platescan/internal/testsupport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newProcessor(store *sqlite.Store, images ports.ImageStore, engine ports.Engine) *Processor {
	return NewProcessor(store, images, preprocess.New(preprocess.DefaultConfig()), engine,
		plate.NewValidator(plate.BROld, plate.BRMercosul), testLogger())
}

func submitJob(t *testing.T, store *sqlite.Store, images *testsupport.ImageStore) domain.RecognitionJob {
	t.Helper()
	ctx := context.Background()
	key := uuid.NewString() + ".png"
	if err := images.Put(ctx, key, testsupport.PNG(64, 32), "image/png"); err != nil {
		t.Fatalf("put image: %v", err)
	}
	job, err := store.Create(ctx, key)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestProcessCompletesWithPlate(t *testing.T) {
	store := openStore(t)
	images := testsupport.NewImageStore()
	engine := &testsupport.StubEngine{Candidates: []domain.Candidate{{Text: "ABC1234", Confidence: 0.88}}}
	proc := newProcessor(store, images, engine)
	job := submitJob(t, store, images)

	if err := proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _ := store.Get(context.Background(), job.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.PlateNumber == nil || *got.PlateNumber != "ABC1234" {
		t.Fatalf("plate = %v, want ABC1234", got.PlateNumber)
	}
	if got.Confidence == nil || *got.Confidence != 0.88 {
		t.Fatalf("confidence = %v, want 0.88", got.Confidence)
	}
	if got.ErrorMessage != nil {
		t.Fatalf("error_message should be null, got %q", *got.ErrorMessage)
	}
}

func TestProcessSelectsGrammarConformingCandidate(t *testing.T) {
	store := openStore(t)
	images := testsupport.NewImageStore()
	engine := &testsupport.StubEngine{Candidates: []domain.Candidate{
		{Text: "XYZ1234", Confidence: 0.9},
		{Text: "random", Confidence: 0.95},
	}}
	proc := newProcessor(store, images, engine)
	job := submitJob(t, store, images)

	if err := proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.Get(context.Background(), job.ID)
	if got.PlateNumber == nil || *got.PlateNumber != "XYZ1234" {
		t.Fatalf("plate = %v, want XYZ1234", got.PlateNumber)
	}
}

func TestProcessNoMatchIsCompletedNotFailed(t *testing.T) {
	store := openStore(t)
	images := testsupport.NewImageStore()
	engine := &testsupport.StubEngine{Candidates: []domain.Candidate{{Text: "not a plate", Confidence: 0.99}}}
	proc := newProcessor(store, images, engine)
	job := submitJob(t, store, images)

	if err := proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.Get(context.Background(), job.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.PlateNumber != nil {
		t.Fatalf("plate = %q, want null", *got.PlateNumber)
	}
	if got.ErrorMessage != nil {
		t.Fatalf("error_message = %q, want null", *got.ErrorMessage)
	}
}

func TestProcessMissingImageFails(t *testing.T) {
	store := openStore(t)
	images := testsupport.NewImageStore()
	engine := &testsupport.StubEngine{}
	proc := newProcessor(store, images, engine)
	job := submitJob(t, store, images)
	images.Delete(job.ImageKey)

	if err := proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.Get(context.Background(), job.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "image unavailable" {
		t.Fatalf("error_message = %v, want image unavailable", got.ErrorMessage)
	}
	if engine.Calls() != 0 {
		t.Fatalf("engine ran %d times on a missing image", engine.Calls())
	}
}

func TestProcessCorruptImageFails(t *testing.T) {
	store := openStore(t)
	images := testsupport.NewImageStore()
	proc := newProcessor(store, images, &testsupport.StubEngine{})
	ctx := context.Background()

	if err := images.Put(ctx, "bad.png", []byte("definitely not a png"), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	job, err := store.Create(ctx, "bad.png")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := proc.Process(ctx, job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.ErrorMessage == nil || !strings.HasPrefix(*got.ErrorMessage, "preprocessing failed") {
		t.Fatalf("error_message = %v", got.ErrorMessage)
	}
}

func TestProcessEngineErrorFails(t *testing.T) {
	store := openStore(t)
	images := testsupport.NewImageStore()
	engine := &testsupport.StubEngine{Err: errors.New("tesseract: internal C noise")}
	proc := newProcessor(store, images, engine)
	job := submitJob(t, store, images)

	if err := proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.Get(context.Background(), job.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "recognition engine failed" {
		t.Fatalf("error_message = %v, want sanitized engine failure", got.ErrorMessage)
	}
}

func TestProcessRecoversFromPanic(t *testing.T) {
	store := openStore(t)
	images := testsupport.NewImageStore()
	proc := newProcessor(store, images, testsupport.PanicEngine{})
	job := submitJob(t, store, images)

	if err := proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process should swallow the panic, got %v", err)
	}
	got, _ := store.Get(context.Background(), job.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "internal error during recognition" {
		t.Fatalf("error_message = %v", got.ErrorMessage)
	}
}

func TestProcessDuplicateDeliveryIsNoop(t *testing.T) {
	store := openStore(t)
	images := testsupport.NewImageStore()
	engine := &testsupport.StubEngine{Candidates: []domain.Candidate{{Text: "ABC1234", Confidence: 0.7}}}
	proc := newProcessor(store, images, engine)
	job := submitJob(t, store, images)
	ctx := context.Background()

	if err := proc.Process(ctx, job.ID); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	first, _ := store.Get(ctx, job.ID)

	if err := proc.Process(ctx, job.ID); err != nil {
		t.Fatalf("duplicate Process: %v", err)
	}
	second, _ := store.Get(ctx, job.ID)

	if engine.Calls() != 1 {
		t.Fatalf("engine ran %d times, want 1", engine.Calls())
	}
	if second.Status != first.Status || second.UpdatedAt != first.UpdatedAt {
		t.Fatalf("duplicate delivery mutated the record: %+v vs %+v", second, first)
	}
}

func TestProcessUnknownJobIsNoop(t *testing.T) {
	store := openStore(t)
	proc := newProcessor(store, testsupport.NewImageStore(), &testsupport.StubEngine{})
	if err := proc.Process(context.Background(), uuid.New()); err != nil {
		t.Fatalf("Process: %v", err)
	}
}
