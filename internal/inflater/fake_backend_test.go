package inflater

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/mongodb-labs/data-inflater/option"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// recordedCall is one call to the fake backend.
type recordedCall struct {
	Method string
	Arg    any
}

// fakeBackend is an in-memory Backend that records the order of calls.
type fakeBackend struct {
	mux sync.Mutex

	rand        *rand.Rand
	collections map[mmongo.Namespace][]bson.Raw
	shardKeys   map[mmongo.Namespace]bson.Raw
	splits      map[mmongo.Namespace][]bson.RawValue
	calls       []recordedCall

	pingErr        error
	enableErr      error
	splitErr       func(boundary bson.RawValue) error
	pipelineErr    func(spec PipelineSpec) error
	pipelineDelay  time.Duration
	chunkCounts    []map[string]int
	chunkCountCall int
}

var _ Backend = &fakeBackend{}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		rand:        rand.New(rand.NewSource(42)),
		collections: map[mmongo.Namespace][]bson.Raw{},
		shardKeys:   map[mmongo.Namespace]bson.Raw{},
		splits:      map[mmongo.Namespace][]bson.RawValue{},
	}
}

// seed inserts documents built from the given values of a single field.
func (fb *fakeBackend) seed(ns mmongo.Namespace, field string, values ...any) {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	for _, val := range values {
		doc := bson.D{{"_id", primitive.NewObjectID()}}
		if field != "" {
			doc = append(doc, bson.E{Key: field, Value: val})
		}

		fb.collections[ns] = append(fb.collections[ns], lo.Must(bson.Marshal(doc)))
	}
}

func (fb *fakeBackend) docs(ns mmongo.Namespace) []bson.Raw {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	return append([]bson.Raw(nil), fb.collections[ns]...)
}

func (fb *fakeBackend) callLog() []recordedCall {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	return append([]recordedCall(nil), fb.calls...)
}

func (fb *fakeBackend) methods() []string {
	return lo.Map(fb.callLog(), func(c recordedCall, _ int) string { return c.Method })
}

func (fb *fakeBackend) record(method string, arg any) {
	fb.calls = append(fb.calls, recordedCall{method, arg})
}

func (fb *fakeBackend) Ping(context.Context) error {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	fb.record("Ping", nil)
	return fb.pingErr
}

func (fb *fakeBackend) CountDocuments(_ context.Context, ns mmongo.Namespace) (int64, error) {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	fb.record("CountDocuments", ns)
	return int64(len(fb.collections[ns])), nil
}

func (fb *fakeBackend) RunAggregationPipeline(ctx context.Context, spec PipelineSpec) (int64, error) {
	if fb.pipelineDelay > 0 {
		time.Sleep(fb.pipelineDelay)
	}

	fb.mux.Lock()
	defer fb.mux.Unlock()

	fb.record("RunAggregationPipeline", spec)

	if fb.pipelineErr != nil {
		if err := fb.pipelineErr(spec); err != nil {
			return 0, err
		}
	}

	source := fb.collections[spec.Source]
	if len(source) == 0 {
		return 0, errors.Errorf("source %s is empty", spec.Source)
	}

	// Each pass is a full permutation of the source, like $sample with a
	// size at least the collection's.
	var sampled []bson.Raw
	for int64(len(sampled)) < spec.Count {
		for _, idx := range fb.rand.Perm(len(source)) {
			sampled = append(sampled, source[idx])
		}
	}
	sampled = sampled[:spec.Count]

	for _, doc := range sampled {
		var asD bson.D
		if err := bson.Unmarshal(doc, &asD); err != nil {
			return 0, err
		}

		asD = lo.Filter(asD, func(e bson.E, _ int) bool { return e.Key != "_id" })
		asD = append(bson.D{{"_id", primitive.NewObjectID()}}, asD...)

		fb.collections[spec.Target] = append(
			fb.collections[spec.Target],
			lo.Must(bson.Marshal(asD)),
		)
	}

	return spec.Count, nil
}

func (fb *fakeBackend) EnableSharding(_ context.Context, ns mmongo.Namespace, key []string) error {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	fb.record("EnableSharding", key)

	if fb.enableErr != nil {
		return fb.enableErr
	}

	fb.shardKeys[ns] = lo.Must(bson.Marshal(RangeShardKey(key)))
	return nil
}

func (fb *fakeBackend) SplitChunk(
	_ context.Context,
	ns mmongo.Namespace,
	key []string,
	boundary bson.RawValue,
) error {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	fb.record("SplitChunk", SplitMiddle(key, boundary))

	if fb.splitErr != nil {
		if err := fb.splitErr(boundary); err != nil {
			return err
		}
	}

	fb.splits[ns] = append(fb.splits[ns], boundary)
	return nil
}

func (fb *fakeBackend) SampleDistinctValues(
	_ context.Context,
	ns mmongo.Namespace,
	field string,
	sampleSize int,
) (FieldSample, error) {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	fb.record("SampleDistinctValues", field)

	source := fb.collections[ns]
	perm := fb.rand.Perm(len(source))
	perm = perm[:min(sampleSize, len(perm))]

	sample := FieldSample{DocsSampled: len(perm)}
	for _, idx := range perm {
		val, err := source[idx].LookupErr(field)
		if err == nil {
			sample.Values = append(sample.Values, val)
		}
	}

	return sample, nil
}

func (fb *fakeBackend) GetShardKey(_ context.Context, ns mmongo.Namespace) (option.Option[bson.Raw], error) {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	fb.record("GetShardKey", ns)

	key, has := fb.shardKeys[ns]
	if !has {
		return option.None[bson.Raw](), nil
	}

	return option.Some(key), nil
}

func (fb *fakeBackend) PrepareTarget(_ context.Context, ns mmongo.Namespace, opts TargetOptions) error {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	fb.record("PrepareTarget", opts)

	if opts.Drop {
		delete(fb.collections, ns)
		delete(fb.shardKeys, ns)
		delete(fb.splits, ns)
	}

	return nil
}

func (fb *fakeBackend) ChunkCountsByShard(context.Context, mmongo.Namespace) (map[string]int, error) {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	fb.record("ChunkCountsByShard", nil)

	if len(fb.chunkCounts) == 0 {
		return map[string]int{}, nil
	}

	idx := min(fb.chunkCountCall, len(fb.chunkCounts)-1)
	fb.chunkCountCall++

	return fb.chunkCounts[idx], nil
}

func (fb *fakeBackend) CollectionStats(_ context.Context, ns mmongo.Namespace) (CollectionStats, error) {
	fb.mux.Lock()
	defer fb.mux.Unlock()

	fb.record("CollectionStats", ns)

	docs := fb.collections[ns]
	size := lo.SumBy(docs, func(d bson.Raw) int64 { return int64(len(d)) })

	stats := CollectionStats{
		Namespace: ns,
		Sharded:   fb.shardKeys[ns] != nil,
		Count:     int64(len(docs)),
		Size:      size,
		TotalSize: size,
	}
	if len(docs) > 0 {
		stats.AvgObjSize = size / int64(len(docs))
	}

	return stats, nil
}

// fakeJournal is an in-memory JobJournal.
type fakeJournal struct {
	mux  sync.Mutex
	done map[string]map[int]int64
}

var _ JobJournal = &fakeJournal{}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{done: map[string]map[int]int64{}}
}

func (fj *fakeJournal) DoneBatches(_ context.Context, fingerprint string) (map[int]int64, error) {
	fj.mux.Lock()
	defer fj.mux.Unlock()

	return lo.Assign(fj.done[fingerprint]), nil
}

func (fj *fakeJournal) RecordDone(_ context.Context, fingerprint string, index int, written int64) error {
	fj.mux.Lock()
	defer fj.mux.Unlock()

	if fj.done[fingerprint] == nil {
		fj.done[fingerprint] = map[int]int64{}
	}
	fj.done[fingerprint][index] = written

	return nil
}

func (fj *fakeJournal) Forget(_ context.Context, fingerprint string) error {
	fj.mux.Lock()
	defer fj.mux.Unlock()

	delete(fj.done, fingerprint)
	return nil
}

// recordingReporter keeps every event it receives.
type recordingReporter struct {
	mux      sync.Mutex
	events   []ProgressEvent
	finished []JobResult
}

func (rr *recordingReporter) Progress(event ProgressEvent) {
	rr.mux.Lock()
	defer rr.mux.Unlock()

	rr.events = append(rr.events, event)
}

func (rr *recordingReporter) Finish(result JobResult) {
	rr.mux.Lock()
	defer rr.mux.Unlock()

	rr.finished = append(rr.finished, result)
}
