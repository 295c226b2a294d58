package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/database"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/replicate"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/risk"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/storage"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func pngImage(t *testing.T, w, h int) entity.EncodedImage {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return entity.NewEncodedImage(buf.Bytes())
}

type fakePredictor struct {
	mu        sync.Mutex
	failures  []error
	inputs    []map[string]any
	downloads int
	output    entity.EncodedImage
}

func (f *fakePredictor) Model(id string) (replicate.Model, error) {
	return replicate.LookupModel(id, nil)
}

func (f *fakePredictor) CreatePrediction(ctx context.Context, model replicate.Model, input map[string]any) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	return &replicate.Prediction{ID: "pred", Status: replicate.StatusStarting}, nil
}

func (f *fakePredictor) WaitForPrediction(ctx context.Context, pred *replicate.Prediction) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	done := &replicate.Prediction{ID: pred.ID, Status: replicate.StatusSucceeded, Output: []byte(`["https://cdn.example/out.png"]`)}
	done.Metrics.PredictTime = 4
	return done, nil
}

func (f *fakePredictor) Download(ctx context.Context, url string) (entity.EncodedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	return f.output, nil
}

func (f *fakePredictor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type fakeUploader struct {
	uploads  int
	cleanups int
	err      error
}

func (u *fakeUploader) Upload(ctx context.Context, img entity.EncodedImage) (*replicate.UploadedInput, error) {
	u.uploads++
	if u.err != nil {
		return nil, u.err
	}
	return &replicate.UploadedInput{
		URL:     "https://objects.example/in.png",
		Cleanup: func(ctx context.Context) { u.cleanups++ },
	}, nil
}

type fakeProducer struct {
	messages []any
	err      error
}

func (p *fakeProducer) SendMessage(ctx context.Context, topic, key string, message any) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

type fixture struct {
	svc       *generationService
	predictor *fakePredictor
	uploader  *fakeUploader
	producer  *fakeProducer
	store     storage.ObjectStorage
	sleeps    []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewFileStorage(t.TempDir(), "http://localhost:8080")
	f := &fixture{
		predictor: &fakePredictor{output: pngImage(t, 32, 32)},
		uploader:  &fakeUploader{},
		producer:  &fakeProducer{},
		store:     store,
	}

	svc := NewGenerationService(
		f.predictor,
		f.uploader,
		database.NewImageRepository(store),
		database.NewGenerationCache(client, 24*time.Hour),
		f.producer,
		risk.NewAssessor(),
		GenerationConfig{
			DefaultModel:  entity.ModelSDXLImg2Img,
			MaxInputBytes: 5 * 1024 * 1024,
			GeneratedTTL:  24 * time.Hour,
			EventsTopic:   "generation-events",
		},
		testLogger(),
	).(*generationService)
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	f.svc = svc
	return f
}

func request(t *testing.T) *entity.GenerationRequest {
	return &entity.GenerationRequest{
		BaseImage: pngImage(t, 64, 48).DataURL(),
		Prompt:    "a watercolor fox",
	}
}

func TestGenerate_Success(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Generate(context.Background(), request(t))
	require.NoError(t, err)

	assert.Equal(t, entity.ModelSDXLImg2Img, resp.Model)
	assert.Equal(t, base64.StdEncoding.EncodeToString(f.predictor.output.Data), resp.Image)
	require.NotNil(t, resp.Cost)
	assert.Equal(t, "USD", resp.Cost.Currency)
	assert.InDelta(t, 4*0.000725, resp.Cost.Amount, 1e-9)
	assert.Contains(t, resp.ImageKey, "generated/")
	assert.Equal(t, "http://localhost:8080/objects/"+resp.ImageKey, resp.ImageURL)
	assert.True(t, f.store.Exists(context.Background(), resp.ImageKey))

	assert.Equal(t, 1, f.uploader.uploads)
	assert.Equal(t, 1, f.uploader.cleanups)
	require.Len(t, f.producer.messages, 1)
	event := f.producer.messages[0].(entity.GenerationEvent)
	assert.Equal(t, entity.EventGenerationCompleted, event.Type)
	assert.False(t, event.Cached)

	input := f.predictor.inputs[0]
	assert.Equal(t, "https://objects.example/in.png", input["image"])
	assert.Equal(t, "a watercolor fox", input["prompt"])
}

func TestGenerate_CacheHitSkipsProvider(t *testing.T) {
	f := newFixture(t)
	req := request(t)

	first, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)

	second, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, f.predictor.calls())
	assert.Equal(t, first.Image, second.Image)
	assert.Equal(t, first.ImageKey, second.ImageKey)
	require.Len(t, f.producer.messages, 2)
	assert.True(t, f.producer.messages[1].(entity.GenerationEvent).Cached)
}

func TestGenerate_RetriesOnOutOfMemory(t *testing.T) {
	f := newFixture(t)
	oom := errors.New("prediction failed: CUDA out of memory. Tried to allocate 2.00 GiB")
	f.predictor.failures = []error{oom, oom}

	steps := 15
	guidance := 5.0
	req := request(t)
	req.Options = &entity.GenerationOptions{Steps: &steps, GuidanceScale: &guidance}

	_, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 3, f.predictor.calls())
	assert.Equal(t, 15, f.predictor.inputs[0]["num_inference_steps"])
	assert.Equal(t, 10, f.predictor.inputs[1]["num_inference_steps"])
	assert.InDelta(t, 3.5, f.predictor.inputs[1]["guidance_scale"].(float64), 1e-9)
	assert.Equal(t, 10, f.predictor.inputs[2]["num_inference_steps"])
	assert.InDelta(t, 3.0, f.predictor.inputs[2]["guidance_scale"].(float64), 1e-9)
	assert.Equal(t, 512, f.predictor.inputs[2]["width"])

	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.sleeps)
	assert.Equal(t, 3, f.uploader.uploads)
	assert.Equal(t, 3, f.uploader.cleanups)
}

func TestGenerate_OutOfMemoryExhausted(t *testing.T) {
	f := newFixture(t)
	oom := errors.New("CUDA out of memory")
	f.predictor.failures = []error{oom, oom, oom}

	_, err := f.svc.Generate(context.Background(), request(t))

	var genErr *entity.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, entity.KindOutOfMemory, genErr.Kind)
	assert.NotEmpty(t, genErr.Suggestions)
	assert.Equal(t, 3, f.predictor.calls())
	assert.Equal(t, 3, f.uploader.cleanups)
	assert.Empty(t, f.producer.messages)
}

func TestGenerate_OtherErrorsAreNotRetried(t *testing.T) {
	f := newFixture(t)
	f.predictor.failures = []error{errors.New("prediction failed: NSFW content detected")}

	_, err := f.svc.Generate(context.Background(), request(t))

	var genErr *entity.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, entity.KindProvider, genErr.Kind)
	assert.Equal(t, 1, f.predictor.calls())
	assert.Equal(t, 1, f.uploader.cleanups)
	assert.Empty(t, f.sleeps)
}

func TestGenerate_TimeoutIsDistinct(t *testing.T) {
	f := newFixture(t)
	f.predictor.failures = []error{entity.ErrPredictionTimeout}

	_, err := f.svc.Generate(context.Background(), request(t))
	assert.True(t, entity.IsGenerationKind(err, entity.KindTimeout))
	assert.ErrorIs(t, err, entity.ErrPredictionTimeout)
}

func TestGenerate_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  *entity.GenerationRequest
		want error
	}{
		{"unknown model", &entity.GenerationRequest{BaseImage: pngImage(t, 8, 8).Base64(), Prompt: "p", Model: "dall-e"}, entity.ErrUnknownModel},
		{"not base64", &entity.GenerationRequest{BaseImage: "!!!", Prompt: "p"}, entity.ErrInvalidImage},
		{"not an image", &entity.GenerationRequest{BaseImage: base64.StdEncoding.EncodeToString([]byte("plain text")), Prompt: "p"}, entity.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Generate(context.Background(), tt.req)
			assert.True(t, entity.IsGenerationKind(err, entity.KindValidation))
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.predictor.calls())
}

func TestGenerate_RejectsOversizedInput(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.MaxInputBytes = 100

	_, err := f.svc.Generate(context.Background(), request(t))
	assert.ErrorIs(t, err, entity.ErrImageTooLarge)
	assert.Zero(t, f.uploader.uploads)
}

func TestGenerate_MissingToken(t *testing.T) {
	svc := NewGenerationService(nil, nil, nil, nil, nil, risk.NewAssessor(), GenerationConfig{DefaultModel: entity.ModelFluxFill}, testLogger())

	_, err := svc.Generate(context.Background(), request(t))
	assert.ErrorIs(t, err, entity.ErrMissingAPIKey)
	assert.True(t, entity.IsGenerationKind(err, entity.KindNotConfigured))
}

func TestGenerate_UploadRetriedOnceOutsideProduction(t *testing.T) {
	f := newFixture(t)
	f.uploader.err = errors.New("disk full")

	_, err := f.svc.Generate(context.Background(), request(t))
	assert.True(t, entity.IsGenerationKind(err, entity.KindUpload))
	assert.Equal(t, 2, f.uploader.uploads)
	assert.Equal(t, []time.Duration{time.Second}, f.sleeps)

	f.svc.cfg.Production = true
	f.uploader.uploads = 0
	_, err = f.svc.Generate(context.Background(), request(t))
	assert.True(t, entity.IsGenerationKind(err, entity.KindUpload))
	assert.Equal(t, 1, f.uploader.uploads)
}
