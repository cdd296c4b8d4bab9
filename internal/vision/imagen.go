package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"

	"plateful/internal/media"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// VertexImagen renders dishes with Imagen on Vertex AI.
type VertexImagen struct {
	projectID          string
	location           string
	model              string
	serviceAccount     string
	serviceAccountJSON string

	mu     sync.Mutex
	client *aiplatform.PredictionClient
}

// VertexImagenConfig describes how to connect to Imagen.
type VertexImagenConfig struct {
	ProjectID          string
	Location           string
	Model              string
	ServiceAccount     string
	ServiceAccountJSON string
}

// NewVertexImagen wires a VertexImagen client. The gRPC connection is opened on first use.
func NewVertexImagen(cfg VertexImagenConfig) *VertexImagen {
	return &VertexImagen{
		projectID:          strings.TrimSpace(cfg.ProjectID),
		location:           strings.TrimSpace(cfg.Location),
		model:              strings.TrimSpace(cfg.Model),
		serviceAccount:     strings.TrimSpace(cfg.ServiceAccount),
		serviceAccountJSON: strings.TrimSpace(cfg.ServiceAccountJSON),
	}
}

// Generate runs an Imagen text-to-image prediction.
func (v *VertexImagen) Generate(ctx context.Context, prompt string) (media.Image, error) {
	if v == nil {
		return media.Image{}, fmt.Errorf("imagen: client not configured")
	}
	if v.projectID == "" || v.location == "" || v.model == "" {
		return media.Image{}, fmt.Errorf("imagen: missing project/location/model")
	}
	if strings.TrimSpace(prompt) == "" {
		return media.Image{}, fmt.Errorf("imagen: prompt is required")
	}

	instance, err := structpb.NewValue(map[string]any{
		"prompt": prompt,
	})
	if err != nil {
		return media.Image{}, fmt.Errorf("imagen: build instance: %w", err)
	}
	params, err := structpb.NewValue(map[string]any{
		"sampleCount":      1,
		"aspectRatio":      "4:3",
		"personGeneration": "dont_allow",
	})
	if err != nil {
		return media.Image{}, fmt.Errorf("imagen: build parameters: %w", err)
	}

	client, err := v.predictionClient(ctx)
	if err != nil {
		return media.Image{}, err
	}

	resp, err := client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   v.endpoint(),
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	})
	if err != nil {
		return media.Image{}, fmt.Errorf("imagen: predict: %w", err)
	}
	return decodePrediction(resp.GetPredictions())
}

// Close releases the underlying gRPC connection.
func (v *VertexImagen) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client == nil {
		return nil
	}
	err := v.client.Close()
	v.client = nil
	return err
}

func (v *VertexImagen) endpoint() string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", v.projectID, v.location, v.model)
}

func (v *VertexImagen) predictionClient(ctx context.Context) (*aiplatform.PredictionClient, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client != nil {
		return v.client, nil
	}

	options, err := v.clientOptions(ctx)
	if err != nil {
		return nil, err
	}
	client, err := aiplatform.NewPredictionClient(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("imagen: prediction client: %w", err)
	}
	v.client = client
	return client, nil
}

func (v *VertexImagen) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	options := []option.ClientOption{option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", v.location))}

	credentialsJSON := []byte(v.serviceAccountJSON)
	if len(credentialsJSON) == 0 && v.serviceAccount != "" {
		data, err := os.ReadFile(v.serviceAccount)
		if err != nil {
			return nil, fmt.Errorf("imagen: read service account: %w", err)
		}
		credentialsJSON = data
	}
	if len(credentialsJSON) == 0 {
		// Application default credentials.
		return options, nil
	}

	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("imagen: parse service account: %w", err)
	}
	return append(options, option.WithTokenSource(creds.TokenSource)), nil
}

func decodePrediction(predictions []*structpb.Value) (media.Image, error) {
	for _, prediction := range predictions {
		fields := prediction.GetStructValue().GetFields()
		encoded := fields["bytesBase64Encoded"].GetStringValue()
		if encoded == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return media.Image{}, fmt.Errorf("imagen: decode result: %w", err)
		}
		return media.NewImage(data, fields["mimeType"].GetStringValue())
	}
	return media.Image{}, ErrNoImageProduced
}
