// Package swift exposes read-only query operations over SWIFT snapshot
// files: whole and masked field reads, metadata, units and path lookups.
//
// A Service is built once at startup from an immutable alias table and
// shared by every request. Each request opens, reads and closes its own
// file handle.
package swift

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/hdf5"
	"github.com/robert-malhotra/swiftserve/internal/locator"
	"github.com/robert-malhotra/swiftserve/internal/metadata"
	"github.com/robert-malhotra/swiftserve/internal/metrics"
	"github.com/robert-malhotra/swiftserve/internal/query"
	"github.com/robert-malhotra/swiftserve/internal/units"
	"github.com/robert-malhotra/swiftserve/ndarray"
)

// Operation names used in log lines and metric labels.
const (
	OpUnmasked     = "unmasked"
	OpMasked       = "masked"
	OpMetadata     = "metadata"
	OpMetadataDict = "metadata_dict"
	OpUnits        = "units"
	OpFilePath     = "filepath"
	OpBoxsize      = "boxsize"
)

// Request selects a field of a dataset.
type Request struct {
	Ref     locator.Reference
	Field   string
	Columns query.Columns
}

// MaskedRequest selects rows of a field through a wire mask.
type MaskedRequest struct {
	Request
	// Mask is a JSON list of [start, end) row pairs.
	Mask string
	// MaskDType is the dtype tag the mask is decoded with. Empty infers it.
	MaskDType string
	// MaskSize is the number of rows the result holds.
	MaskSize int
}

// BoxsizePayload is the simulation box size as a wire array plus the unit
// its values are expressed in.
type BoxsizePayload struct {
	Array any    `json:"array"`
	DType string `json:"dtype"`
	Units string `json:"units"`
}

// Options configures a Service.
type Options struct {
	// MaxMaskSize caps MaskedRequest.MaskSize. Zero means unlimited.
	MaxMaskSize int
	// OpenOptions are passed to every metadata and units file open.
	OpenOptions []hdf5.OpenOption
}

// Service implements the snapshot query operations.
type Service struct {
	locator *locator.Table
	engine  *query.Engine
	cache   *metadata.Cache
	metrics *metrics.Metrics
	logger  log.Logger
	opts    Options
}

// New creates a Service. A nil cache builds metadata on every request, and
// nil metrics or logger disable them.
func New(table *locator.Table, engine *query.Engine, cache *metadata.Cache, m *metrics.Metrics, logger log.Logger, opts Options) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Service{
		locator: table,
		engine:  engine,
		cache:   cache,
		metrics: m,
		logger:  logger,
		opts:    opts,
	}
}

// RetrieveUnmasked reads every row of a field.
func (s *Service) RetrieveUnmasked(ctx context.Context, req Request) (out ndarray.Serialized, err error) {
	logger, done := s.begin(ctx, OpUnmasked, "ref", req.Ref, "field", req.Field)
	defer func() { done(err) }()

	path, err := s.locator.ResolveExisting(req.Ref)
	if err != nil {
		return ndarray.Serialized{}, err
	}
	arr, err := s.engine.ReadAll(ctx, path, req.Field, req.Columns)
	if err != nil {
		return ndarray.Serialized{}, err
	}
	s.observeArray(logger, arr)
	return ndarray.Encode(arr), nil
}

// RetrieveMasked reads the rows of a field selected by a wire mask.
func (s *Service) RetrieveMasked(ctx context.Context, req MaskedRequest) (out ndarray.Serialized, err error) {
	logger, done := s.begin(ctx, OpMasked, "ref", req.Ref, "field", req.Field, "mask_size", req.MaskSize)
	defer func() { done(err) }()

	path, err := s.locator.ResolveExisting(req.Ref)
	if err != nil {
		return ndarray.Serialized{}, err
	}
	if s.opts.MaxMaskSize > 0 && req.MaskSize > s.opts.MaxMaskSize {
		return ndarray.Serialized{}, apierr.NewMaskOutOfBounds(req.Field, path,
			fmt.Sprintf("mask size %d exceeds the limit of %d rows", req.MaskSize, s.opts.MaxMaskSize))
	}
	arr, err := s.engine.ReadMasked(ctx, path, req.Field, req.Mask, req.MaskDType, req.MaskSize, req.Columns)
	if err != nil {
		return ndarray.Serialized{}, err
	}
	s.observeArray(logger, arr)
	return ndarray.Encode(arr), nil
}

// RetrieveMetadata returns the opaque binary form of a dataset's metadata.
// A nil u reads the units from the file.
func (s *Service) RetrieveMetadata(ctx context.Context, ref locator.Reference, u *units.Map) (blob []byte, err error) {
	_, done := s.begin(ctx, OpMetadata, "ref", ref)
	defer func() { done(err) }()

	obj, err := s.metadata(ctx, ref, u)
	if err != nil {
		return nil, err
	}
	if blob, err = obj.MarshalBinary(); err != nil {
		return nil, err
	}
	return blob, nil
}

// RetrieveMetadataDict returns a dataset's metadata as JSON-safe values.
func (s *Service) RetrieveMetadataDict(ctx context.Context, ref locator.Reference, u *units.Map) (out map[string]any, err error) {
	_, done := s.begin(ctx, OpMetadataDict, "ref", ref)
	defer func() { done(err) }()

	obj, err := s.metadata(ctx, ref, u)
	if err != nil {
		return nil, err
	}
	return metadata.Serialize(obj)
}

// RetrieveUnitsDict returns the units of a dataset as JSON-safe strings.
func (s *Service) RetrieveUnitsDict(ctx context.Context, ref locator.Reference) (out map[string]any, err error) {
	_, done := s.begin(ctx, OpUnits, "ref", ref)
	defer func() { done(err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.locator.ResolveExisting(ref)
	if err != nil {
		return nil, err
	}
	u, err := units.FromFile(path, s.opts.OpenOptions...)
	if err != nil {
		return nil, err
	}
	return u.Wire(), nil
}

// RetrieveFilePath returns the cleaned path a reference resolves to. The
// path need not exist.
func (s *Service) RetrieveFilePath(ctx context.Context, ref locator.Reference) (path string, err error) {
	_, done := s.begin(ctx, OpFilePath, "ref", ref)
	defer func() { done(err) }()

	path, err = s.locator.Resolve(ref)
	if err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

// RetrieveMaskBoxsize returns the box size recorded in a dataset's header,
// in the file's length unit.
func (s *Service) RetrieveMaskBoxsize(ctx context.Context, ref locator.Reference) (out BoxsizePayload, err error) {
	_, done := s.begin(ctx, OpBoxsize, "ref", ref)
	defer func() { done(err) }()

	obj, err := s.metadata(ctx, ref, nil)
	if err != nil {
		return BoxsizePayload{}, err
	}
	v, ok := obj.Get("boxsize")
	if !ok || v.Kind() != metadata.KindArray {
		path, _ := s.locator.Resolve(ref)
		return BoxsizePayload{}, apierr.NewFieldNotFound("Header/BoxSize", path, nil)
	}
	enc := ndarray.Encode(v.Interface().(*ndarray.Array))

	unit := units.Dimensionless
	if uv, ok := obj.Get(units.KeyUnits); ok && uv.Kind() == metadata.KindUnits {
		if length, ok := uv.Interface().(*units.Map).Role("length"); ok {
			unit = length.Scaled()
		}
	}
	return BoxsizePayload{Array: enc.Array, DType: enc.DType, Units: unit}, nil
}

// metadata resolves ref and fetches its metadata object through the cache.
func (s *Service) metadata(ctx context.Context, ref locator.Reference, u *units.Map) (*metadata.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.locator.ResolveExisting(ref)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		return metadata.Build(ctx, path, u, s.opts.OpenOptions...)
	}
	obj, hit, err := s.cache.Get(ctx, path, u)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCache(hit)
	return obj, nil
}

func (s *Service) observeArray(logger log.Logger, arr *ndarray.Array) {
	rows := 1
	if len(arr.Shape) > 0 {
		rows = arr.Shape[0]
	}
	bytes := arr.Len() * arr.DType.Size
	s.metrics.ObserveRead(rows, bytes)
	level.Debug(logger).Log("msg", "array read", "shape", fmt.Sprint(arr.Shape), "dtype", arr.DType, "bytes", bytes)
}

// begin tags a request with an id and returns its logger and a completion
// func that logs the outcome and records metrics.
func (s *Service) begin(ctx context.Context, op string, keyvals ...interface{}) (log.Logger, func(error)) {
	start := time.Now()
	logger := log.With(s.logger, "request_id", RequestID(ctx), "op", op)
	logger = log.With(logger, keyvals...)
	return logger, func(err error) {
		s.metrics.ObserveRequest(op, start, err)
		if err != nil {
			level.Warn(logger).Log("msg", "request failed", "kind", apierr.KindOf(err), "err", err, "duration", time.Since(start))
			return
		}
		level.Info(logger).Log("msg", "request served", "duration", time.Since(start))
	}
}

type requestIDKey struct{}

// WithRequestID returns a context carrying id as the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id carried by ctx, or a new random one.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
