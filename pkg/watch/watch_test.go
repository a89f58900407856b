package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fs "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/pkg/index"
	"github.com/gofhir/fhirschema/pkg/loader"
	"github.com/gofhir/fhirschema/pkg/logger"
)

const basicBundle = `{"resourceType":"Bundle","entry":[{"resource":{
	"resourceType":"StructureDefinition","name":"Basic","kind":"resource","type":"Basic",
	"snapshot":{"element":[
		{"path":"Basic","min":0,"max":"*"},
		{"path":"Basic.code","min":1,"max":"1","type":[{"code":"CodeableConcept"}]}
	]}}}]}`

const twoResourceBundle = `{"resourceType":"Bundle","entry":[{"resource":{
	"resourceType":"StructureDefinition","name":"Basic","kind":"resource","type":"Basic",
	"snapshot":{"element":[
		{"path":"Basic","min":0,"max":"*"},
		{"path":"Basic.code","min":1,"max":"1","type":[{"code":"CodeableConcept"}]}
	]}}},{"resource":{
	"resourceType":"StructureDefinition","name":"Account","kind":"resource","type":"Account",
	"snapshot":{"element":[
		{"path":"Account","min":0,"max":"*"},
		{"path":"Account.status","min":1,"max":"1","type":[{"code":"code"}]}
	]}}}]}`

func quietLogger() *logger.Logger {
	return logger.New(&strings.Builder{}, logger.LevelNone)
}

func fileLoader(path string) LoadFunc {
	opt := fs.WithLogger(quietLogger())
	return func(ctx context.Context) (*index.Index, error) {
		reg, err := loader.LoadFile(ctx, path, opt)
		if err != nil {
			return nil, err
		}
		return index.New(reg, opt), nil
	}
}

func setup(t *testing.T, content string) (string, *index.Holder) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles-resources.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	idx, err := fileLoader(path)(context.Background())
	require.NoError(t, err)
	return path, index.NewHolder(idx)
}

func TestReloadSwapsOnSuccess(t *testing.T) {
	path, holder := setup(t, basicBundle)
	before := holder.Load()

	r, err := New(path, holder, fileLoader(path), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer r.stop()

	require.NoError(t, os.WriteFile(path, []byte(twoResourceBundle), 0o600))
	require.NoError(t, r.Reload(context.Background()))

	after := holder.Load()
	assert.NotSame(t, before, after)
	assert.Equal(t, []string{"Account", "Basic"}, after.ListResources())
	assert.Equal(t, []string{"Basic"}, before.ListResources(), "the old index keeps its snapshot")
}

func TestReloadKeepsIndexOnFailure(t *testing.T) {
	path, holder := setup(t, basicBundle)
	before := holder.Load()

	var notified []error
	r, err := New(path, holder, fileLoader(path),
		WithLogger(quietLogger()),
		WithNotify(func(err error) { notified = append(notified, err) }))
	require.NoError(t, err)
	defer r.stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"resourceType":"Bundle","entry":[`), 0o600))
	err = r.Reload(context.Background())
	require.Error(t, err)

	assert.Same(t, before, holder.Load())
	require.Len(t, notified, 1)
	assert.Equal(t, err, notified[0])
}

func TestNewRejectsMissingDirectory(t *testing.T) {
	holder := index.NewHolder(nil)
	_, err := New(filepath.Join(t.TempDir(), "missing", "bundle.json"), holder, func(context.Context) (*index.Index, error) {
		return nil, errors.New("unused")
	})
	assert.Error(t, err)
}

func TestRunReloadsOnChange(t *testing.T) {
	path, holder := setup(t, basicBundle)

	results := make(chan error, 4)
	r, err := New(path, holder, fileLoader(path),
		WithLogger(quietLogger()),
		WithDebounce(50*time.Millisecond),
		WithNotify(func(err error) { results <- err }))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Give the watcher loop time to start
	time.Sleep(50 * time.Millisecond)

	// Rapid writes are debounced into one reload
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(twoResourceBundle), 0o600))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case err := <-results:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	assert.Equal(t, []string{"Account", "Basic"}, holder.Load().ListResources())

	// Unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "notes.txt"), []byte("x"), 0o600))
	select {
	case err := <-results:
		t.Fatalf("unexpected reload: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
