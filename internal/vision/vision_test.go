package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"
	"google.golang.org/protobuf/types/known/structpb"

	"plateful/internal/media"
)

var jpegImage = media.Image{Data: []byte{0xff, 0xd8, 0xff, 0xe0}, MIMEType: "image/jpeg"}

type fakeModels struct {
	text      string
	err       error
	parts     []*genai.Part
	images    []*genai.GeneratedImage
	lastModel string
	lastCfg   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.lastModel = model
	f.lastCfg = config
	if f.err != nil {
		return nil, f.err
	}
	parts := f.parts
	if parts == nil {
		parts = []*genai.Part{{Text: f.text}}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}, nil
}

func (f *fakeModels) GenerateImages(_ context.Context, model, _ string, _ *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	f.lastModel = model
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateImagesResponse{GeneratedImages: f.images}, nil
}

func TestIsFood(t *testing.T) {
	cases := []struct {
		name  string
		model *fakeModels
		want  bool
	}{
		{"yes", &fakeModels{text: `{"isFood": true}`}, true},
		{"no", &fakeModels{text: `{"isFood": false}`}, false},
		{"fenced", &fakeModels{text: "```json\n{\"isFood\": true}\n```"}, true},
		{"transport error", &fakeModels{err: errors.New("503")}, false},
		{"garbage", &fakeModels{text: "I think so"}, false},
		{"missing field", &fakeModels{text: `{}`}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClassifier(tc.model, "", 0, zap.NewNop())
			assert.Equal(t, tc.want, c.IsFood(context.Background(), jpegImage))
		})
	}
}

func TestIsFoodWithoutImageIsFalse(t *testing.T) {
	c := NewClassifier(&fakeModels{text: `{"isFood": true}`}, "", 0, nil)
	assert.False(t, c.IsFood(context.Background(), media.Image{}))
}

func TestMatchesRecipe(t *testing.T) {
	models := &fakeModels{text: `{"matches": true}`}
	c := NewClassifier(models, "models/gemini-check", 0, nil)

	assert.True(t, c.MatchesRecipe(context.Background(), "Ramen", jpegImage))
	assert.Equal(t, "gemini-check", models.lastModel)
	assert.Equal(t, genai.TypeObject, models.lastCfg.ResponseSchema.Type)

	models.err = errors.New("timeout")
	assert.False(t, c.MatchesRecipe(context.Background(), "Ramen", jpegImage))
}

func TestGeminiImageGeneratorInlineData(t *testing.T) {
	models := &fakeModels{parts: []*genai.Part{
		{Text: "here you go"},
		{InlineData: &genai.Blob{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}},
	}}
	g := NewGeminiImageGenerator(models, "", 0)

	img, err := g.Generate(context.Background(), "a bowl of ramen")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, defaultImageModel, models.lastModel)
	assert.Equal(t, []string{"IMAGE"}, models.lastCfg.ResponseModalities)
}

func TestGeminiImageGeneratorNoImage(t *testing.T) {
	g := NewGeminiImageGenerator(&fakeModels{text: "I can't draw that"}, "", 0)

	_, err := g.Generate(context.Background(), "a bowl of ramen")
	assert.ErrorIs(t, err, ErrNoImageProduced)

	_, err = g.Generate(context.Background(), " ")
	assert.Error(t, err)
}

func TestGeminiImageGeneratorImagenModel(t *testing.T) {
	models := &fakeModels{images: []*genai.GeneratedImage{{Image: &genai.Image{ImageBytes: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"}}}}
	g := NewGeminiImageGenerator(models, "imagen-4.0-generate-001", 0)

	img, err := g.Generate(context.Background(), "tacos")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.Equal(t, "imagen-4.0-generate-001", models.lastModel)

	models.images = nil
	_, err = g.Generate(context.Background(), "tacos")
	assert.ErrorIs(t, err, ErrNoImageProduced)
}

func TestVertexImagenRequiresConfig(t *testing.T) {
	_, err := NewVertexImagen(VertexImagenConfig{}).Generate(context.Background(), "tacos")
	assert.ErrorContains(t, err, "missing project")
}

func TestDecodePrediction(t *testing.T) {
	data := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	prediction, err := structpb.NewValue(map[string]any{
		"bytesBase64Encoded": base64.StdEncoding.EncodeToString(data),
		"mimeType":           "image/png",
	})
	require.NoError(t, err)

	img, err := decodePrediction([]*structpb.Value{prediction})
	require.NoError(t, err)
	assert.Equal(t, data, img.Data)
	assert.Equal(t, "image/png", img.MIMEType)

	_, err = decodePrediction(nil)
	assert.ErrorIs(t, err, ErrNoImageProduced)
}

type stubClassifier struct{ food, match bool }

func (s stubClassifier) IsFood(context.Context, media.Image) bool { return s.food }

func (s stubClassifier) MatchesRecipe(context.Context, string, media.Image) bool { return s.match }

type stubRenderer struct {
	img media.Image
	err error
}

func (s stubRenderer) Generate(context.Context, string) (media.Image, error) { return s.img, s.err }

func TestHandlerClassify(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "fridge.jpg")
	require.NoError(t, err)
	_, _ = part.Write(jpegImage.Data)
	require.NoError(t, mw.WriteField("recipe", "Omelette"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/vision/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	Handler{Classifier: stubClassifier{food: true}}.Classify(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]bool{"isFood": true, "matches": false}, got)
}

func TestHandlerRender(t *testing.T) {
	h := Handler{Renderer: stubRenderer{img: jpegImage}}
	rec := httptest.NewRecorder()
	h.Render(rec, httptest.NewRequest(http.MethodPost, "/api/vision/render", strings.NewReader(`{"prompt":"pie"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data:image/jpeg;base64,")

	h = Handler{Renderer: stubRenderer{err: ErrNoImageProduced}}
	rec = httptest.NewRecorder()
	h.Render(rec, httptest.NewRequest(http.MethodPost, "/api/vision/render", strings.NewReader(`{"prompt":"pie"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	h.Render(rec, httptest.NewRequest(http.MethodPost, "/api/vision/render", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
