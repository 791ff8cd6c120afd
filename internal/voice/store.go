// Package voice loads, validates, and combines Kokoro style vectors.
//
// One file per voice lives in the store directory. Shipped voices use the
// legacy layout (a bare little-endian float32 payload, accent derived from
// the name prefix); vectors written by Save carry an explicit header so the
// accent survives arbitrary names such as "my_mix".
package voice

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kokoro-voice/kokoro-service/internal/core"
	"github.com/kokoro-voice/kokoro-service/internal/voiceutil"
)

// Vector file layout constants.
const (
	vectorFileExt   = ".bin"
	formatVersion   = 1
	bytesPerSample  = 4
	filePermissions = 0o600
)

// headerSize is magic + version byte + accent byte + uint32 dimensionality.
const headerSize = 4 + 1 + 1 + 4

// fileMagic marks the native vector layout.
var fileMagic = []byte("KVEC")

// Error message formats.
const (
	errFmtNoFileForVoice    = "%w: no file for voice %q"
	errFmtReadVoiceFile     = "failed to read voice file for %q: %w"
	errFmtEmptyPayload      = "%w: voice file for %q is empty"
	errFmtMisalignedPayload = "%w: voice file for %q is not a float32 vector (%d bytes)"
	errFmtUnknownPrefix     = "%w: cannot derive accent from voice name %q"
	errFmtBadVersion        = "%w: unsupported voice file version %d for %q"
	errFmtTruncatedPayload  = "%w: voice file for %q declares %d dimensions, holds %d"
	errFmtDimDisagrees      = "%w: voice %q has %d dimensions, store reference is %d"
	errFmtEmptyMixSpec      = "%w: mix spec is empty"
	errFmtNegativeWeight    = "%w: weight for voice %q is negative (%g)"
	errFmtNonPositiveSum    = "%w: mix weights sum to %g, must be positive"
	errFmtMixedAccents      = "%w: cannot mix accent %q voice %q with accent %q voice %q"
	errFmtBlendLenMismatch  = "%w: %d vectors with %d weights"
	errFmtBlendDimMismatch  = "%w: vector %q has %d dimensions, vector %q has %d"
	errFmtEmptyVector       = "%w: vector %q has no data"
	errFmtSaveVoice         = "failed to persist voice %q: %w"
	errFmtListVoices        = "failed to list voices in %s: %w"
)

// MixSpec maps voice names to non-negative blend weights. Weights are
// normalized to sum to one before combination, so only their ratios matter.
type MixSpec map[string]float64

// Store loads named style vectors from a directory and derives new ones via
// weighted composition. The dimensionality of the first vector loaded
// becomes the store's reference; every later load must agree with it.
//
// Loaded vectors are cached by name. The cache is guarded by a mutex, so a
// single Store is safe for concurrent use.
type Store struct {
	dir    string
	mu     sync.Mutex
	refDim int
	cache  map[string]cachedVoice
}

type cachedVoice struct {
	accent core.Accent
	data   []float32
}

// NewStore creates a voice store over the given directory.
func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		refDim: 0,
		cache:  make(map[string]cachedVoice),
	}
}

// Dir returns the directory the store reads from.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads the style vector for name. It fails with core.ErrVoiceNotFound
// when no file exists and with core.ErrShapeMismatch when the vector's
// dimensionality disagrees with the store's reference dimensionality.
// Repeated loads of the same name return identical data.
func (s *Store) Load(name string) (core.VoiceVector, error) {
	accent, data, err := s.loadData(name)
	if err != nil {
		return core.VoiceVector{}, err
	}

	return core.VoiceVector{
		Name:   name,
		Accent: accent,
		Data:   data,
	}, nil
}

// Mix produces a new style vector as the convex combination of the named
// vectors. The raw weights are divided by their sum; an empty spec, a
// negative weight, or a non-positive weight sum is core.ErrInvalidArgument.
// All inputs must share one accent, which becomes the accent of the result.
//
// No magnitude renormalization is applied beyond the weight normalization:
// the embedding space is documented to behave acceptably under plain linear
// interpolation.
func (s *Store) Mix(spec MixSpec) (core.VoiceVector, error) {
	if len(spec) == 0 {
		return core.VoiceVector{}, fmt.Errorf(errFmtEmptyMixSpec, core.ErrInvalidArgument)
	}

	names := sortedNames(spec)

	weights := make([]float64, 0, len(names))
	vectors := make([]core.VoiceVector, 0, len(names))

	for _, name := range names {
		weight := spec[name]
		if weight < 0 {
			return core.VoiceVector{}, fmt.Errorf(
				errFmtNegativeWeight, core.ErrInvalidArgument, name, weight,
			)
		}

		vector, err := s.Load(name)
		if err != nil {
			return core.VoiceVector{}, err
		}

		weights = append(weights, weight)
		vectors = append(vectors, vector)
	}

	accent, err := sharedAccent(vectors)
	if err != nil {
		return core.VoiceVector{}, err
	}

	data, err := Blend(vectors, weights)
	if err != nil {
		return core.VoiceVector{}, err
	}

	return core.VoiceVector{
		Name:   mixName(names),
		Accent: accent,
		Data:   data,
	}, nil
}

// Save persists the vector under name, silently overwriting any previous
// vector of that name. The file carries the accent explicitly. A vector
// whose dimensionality disagrees with the store's reference is rejected, so
// Load behaves the same whether it is served from cache or from disk.
func (s *Store) Save(name string, vector core.VoiceVector) error {
	s.mu.Lock()
	refDim := s.refDim
	s.mu.Unlock()

	if refDim != 0 && refDim != len(vector.Data) {
		return fmt.Errorf(
			errFmtDimDisagrees, core.ErrShapeMismatch, name, len(vector.Data), refDim,
		)
	}

	err := voiceutil.EnsureDir(s.dir)
	if err != nil {
		return fmt.Errorf(errFmtSaveVoice, name, err)
	}

	encoded := encodeVector(vector.Accent, vector.Data)

	writeErr := os.WriteFile(s.vectorPath(name), encoded, filePermissions)
	if writeErr != nil {
		return fmt.Errorf(errFmtSaveVoice, name, writeErr)
	}

	s.mu.Lock()
	s.cache[name] = cachedVoice{
		accent: vector.Accent,
		data:   append([]float32(nil), vector.Data...),
	}
	if s.refDim == 0 {
		s.refDim = len(vector.Data)
	}
	s.mu.Unlock()

	return nil
}

// List enumerates the known voice names in lexical order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf(errFmtListVoices, s.dir, err)
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), vectorFileExt) {
			continue
		}

		names = append(names, strings.TrimSuffix(entry.Name(), vectorFileExt))
	}

	sort.Strings(names)

	return names, nil
}

// Blend computes the normalized weighted sum of already-loaded vectors. A
// dimensionality mismatch between any two inputs is core.ErrShapeMismatch,
// regardless of whether a store has seen them.
func Blend(vectors []core.VoiceVector, weights []float64) ([]float32, error) {
	if len(vectors) == 0 || len(vectors) != len(weights) {
		return nil, fmt.Errorf(
			errFmtBlendLenMismatch, core.ErrInvalidArgument, len(vectors), len(weights),
		)
	}

	reference := vectors[0]
	if reference.Dimensionality() == 0 {
		return nil, fmt.Errorf(errFmtEmptyVector, core.ErrInvalidArgument, reference.Name)
	}

	for _, vector := range vectors[1:] {
		if vector.Dimensionality() != reference.Dimensionality() {
			return nil, fmt.Errorf(
				errFmtBlendDimMismatch,
				core.ErrShapeMismatch,
				vector.Name,
				vector.Dimensionality(),
				reference.Name,
				reference.Dimensionality(),
			)
		}
	}

	var sum float64
	for _, weight := range weights {
		sum += weight
	}

	if sum <= 0 {
		return nil, fmt.Errorf(errFmtNonPositiveSum, core.ErrInvalidArgument, sum)
	}

	blended := make([]float32, reference.Dimensionality())

	for i := range blended {
		var acc float64

		for j, vector := range vectors {
			acc += (weights[j] / sum) * float64(vector.Data[i])
		}

		blended[i] = float32(acc)
	}

	return blended, nil
}

// loadData returns a caller-owned copy of the vector payload for name,
// serving repeated loads from the cache.
func (s *Store) loadData(name string) (core.Accent, []float32, error) {
	s.mu.Lock()
	cached, hit := s.cache[name]
	s.mu.Unlock()

	if hit {
		return cached.accent, append([]float32(nil), cached.data...), nil
	}

	raw, err := os.ReadFile(s.vectorPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, fmt.Errorf(errFmtNoFileForVoice, core.ErrVoiceNotFound, name)
		}

		return 0, nil, fmt.Errorf(errFmtReadVoiceFile, name, err)
	}

	accent, data, decodeErr := decodeVector(name, raw)
	if decodeErr != nil {
		return 0, nil, decodeErr
	}

	s.mu.Lock()
	if s.refDim == 0 {
		s.refDim = len(data)
	} else if s.refDim != len(data) {
		refDim := s.refDim
		s.mu.Unlock()

		return 0, nil, fmt.Errorf(
			errFmtDimDisagrees, core.ErrShapeMismatch, name, len(data), refDim,
		)
	}
	s.cache[name] = cachedVoice{accent: accent, data: data}
	s.mu.Unlock()

	return accent, append([]float32(nil), data...), nil
}

func (s *Store) vectorPath(name string) string {
	return filepath.Join(s.dir, voiceutil.SanitizeVoiceName(name)+vectorFileExt)
}

// decodeVector parses either vector layout into an accent and payload.
func decodeVector(name string, raw []byte) (core.Accent, []float32, error) {
	if len(raw) >= headerSize && bytes.Equal(raw[:len(fileMagic)], fileMagic) {
		return decodeNative(name, raw)
	}

	return decodeLegacy(name, raw)
}

func decodeNative(name string, raw []byte) (core.Accent, []float32, error) {
	version := raw[len(fileMagic)]
	if version != formatVersion {
		return 0, nil, fmt.Errorf(
			errFmtBadVersion, core.ErrInvalidArgument, version, name,
		)
	}

	accent := core.Accent(raw[len(fileMagic)+1])

	_, accentErr := core.LanguageForAccent(accent)
	if accentErr != nil {
		return 0, nil, accentErr
	}

	dim := int(binary.BigEndian.Uint32(raw[len(fileMagic)+2 : headerSize]))

	payload := raw[headerSize:]
	if len(payload) != dim*bytesPerSample {
		return 0, nil, fmt.Errorf(
			errFmtTruncatedPayload,
			core.ErrInvalidArgument,
			name,
			dim,
			len(payload)/bytesPerSample,
		)
	}

	return accent, decodeFloats(payload), nil
}

func decodeLegacy(name string, raw []byte) (core.Accent, []float32, error) {
	if len(raw) == 0 {
		return 0, nil, fmt.Errorf(errFmtEmptyPayload, core.ErrInvalidArgument, name)
	}

	if len(raw)%bytesPerSample != 0 {
		return 0, nil, fmt.Errorf(
			errFmtMisalignedPayload, core.ErrInvalidArgument, name, len(raw),
		)
	}

	accent, err := AccentFromName(name)
	if err != nil {
		return 0, nil, err
	}

	return accent, decodeFloats(raw), nil
}

// AccentFromName derives the accent code from a voice name's first letter,
// the convention shipped voices follow (af_bella, bm_george, af).
func AccentFromName(name string) (core.Accent, error) {
	if name != "" {
		accent := core.Accent(name[0])

		_, err := core.LanguageForAccent(accent)
		if err == nil {
			return accent, nil
		}
	}

	return 0, fmt.Errorf(errFmtUnknownPrefix, core.ErrInvalidArgument, name)
}

func encodeVector(accent core.Accent, data []float32) []byte {
	encoded := make([]byte, headerSize+len(data)*bytesPerSample)
	copy(encoded, fileMagic)
	encoded[len(fileMagic)] = formatVersion
	encoded[len(fileMagic)+1] = byte(accent)
	binary.BigEndian.PutUint32(encoded[len(fileMagic)+2:headerSize], uint32(len(data)))

	for i, sample := range data {
		binary.LittleEndian.PutUint32(
			encoded[headerSize+i*bytesPerSample:],
			math.Float32bits(sample),
		)
	}

	return encoded
}

func decodeFloats(payload []byte) []float32 {
	data := make([]float32, len(payload)/bytesPerSample)
	for i := range data {
		data[i] = math.Float32frombits(
			binary.LittleEndian.Uint32(payload[i*bytesPerSample:]),
		)
	}

	return data
}

func sortedNames(spec MixSpec) []string {
	names := make([]string, 0, len(spec))
	for name := range spec {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func sharedAccent(vectors []core.VoiceVector) (core.Accent, error) {
	accent := vectors[0].Accent

	for _, vector := range vectors[1:] {
		if vector.Accent != accent {
			return 0, fmt.Errorf(
				errFmtMixedAccents,
				core.ErrInvalidArgument,
				accent.String(),
				vectors[0].Name,
				vector.Accent.String(),
				vector.Name,
			)
		}
	}

	return accent, nil
}

func mixName(names []string) string {
	return strings.Join(names, "+")
}
