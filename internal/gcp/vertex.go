package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Narration Prompts ---
const NarratorSystemPrompt = "Anda adalah asisten pembaca materi kuliah untuk penyandang tunanetra. Jawaban Anda akan dibacakan dengan suara, jadi gunakan kalimat yang mengalir dan hindari format visual."

// ImageNarrationPrompt asks for a structured description of a lecture slide screenshot.
const ImageNarrationPrompt = "Halo, saya seorang disabilitas tuna netra yang membutuhkan bantuan memahami materi kuliah. Saya memiliki tangkapan layar dari materi tersebut. Dapatkah Anda membantu menjelaskan teks dalam gambar, termasuk judul, subjudul, poin penting, dan kesimpulan? Jika ada gambar, bagan, atau diagram, mohon berikan deskripsi yang jelas dan mendetail tentang apa yang ditampilkan, termasuk elemen-elemen di dalamnya, hubungan antar elemen, serta informasi penting lainnya yang perlu saya ketahui. Jika istilah atau konsepnya sulit, mohon sertakan penjelasan singkat untuk membantu saya memahami. Terakhir, tolong ringkas poin-poin utama dan ide penting dari materi berdasarkan gambar atau diagram yang sudah dijelaskan."

// DocumentNarrationPrompt asks the document-chat service for the same structure over a whole PDF.
const DocumentNarrationPrompt = "Halo, saya seorang tunanetra yang membutuhkan bantuan untuk memahami file ini. Dapatkah Anda membantu menjelaskan teks pada file ini, termasuk judul, subjudul, poin penting, dan kesimpulan? Jika terdapat gambar, bagan, atau diagram, mohon berikan deskripsi yang jelas dan mendetail tentang apa yang digambarkan, termasuk elemen-elemen yang ada, hubungan antar elemen, serta informasi penting lainnya yang perlu saya ketahui. Jika ada istilah atau konsep yang sulit, mohon sertakan penjelasan singkat untuk membantu saya memahami. Terakhir, tolong ringkas poin-poin utama dan ide penting dari materi berdasarkan gambar atau diagram yang sudah dijelaskan."

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// VertexClient holds the pre-configured narration model.
type VertexClient struct {
	NarratorModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a new client holding the narration model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	narratorModel := baseClient.GenerativeModel(modelName)
	narratorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(NarratorSystemPrompt)},
	}
	narratorModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}

	return &VertexClient{
		NarratorModel: narratorModel,
		baseClient:    baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
