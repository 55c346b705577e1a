// Package llm answers the analysis service operations with an
// OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mr1hm/go-perimeter-risk/internal/analysis"
	"github.com/mr1hm/go-perimeter-risk/internal/risk"
)

const (
	DefaultBaseURL = "https://api.sambanova.ai/v1"
	DefaultModel   = "Llama-4-Maverick-17B-128E-Instruct"
)

var (
	ErrEmptyResponse = errors.New("llm returned no content")
	ErrInvalidFormat = errors.New("invalid llm response format")
)

// go-openai drops a zero temperature from the request, so the smallest
// positive value stands in for deterministic sampling.
const deterministic = math.SmallestNonzeroFloat32

type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Analyzer struct {
	client Completer
	model  string
}

func New(apiKey, baseURL, model string, timeout time.Duration) *Analyzer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return NewWithClient(openai.NewClientWithConfig(cfg), model)
}

func NewWithClient(client Completer, model string) *Analyzer {
	if model == "" {
		model = DefaultModel
	}
	return &Analyzer{client: client, model: model}
}

// Classify asks the model to assign a legend code to each POI. POIs the
// model leaves out come back as PN.
func (a *Analyzer) Classify(ctx context.Context, req analysis.ClassifyRequest) ([]analysis.Classification, error) {
	var places strings.Builder
	for _, p := range req.POIs {
		fmt.Fprintf(&places, "- %s: %s (types: %s) @ [%.6f,%.6f]\n", p.ID, p.Name, strings.Join(p.Types, ", "), p.Lat, p.Lng)
	}
	prompt := "Por favor, realiza lo siguiente:\n" +
		"1. Clasifica cada punto de interés según esta leyenda con los códigos indicados:\n" +
		"   - PR: Puntos de Riesgo\n" +
		"   - PN: Puntos Neutros\n" +
		"   - PA: Puntos de Apoyo\n" +
		"   - Va: Vialidad de Acceso\n" +
		"   - Ve: Vialidad de Egreso\n" +
		"   - inundacion: Zonas de Inundación\n" +
		"   - deslizamiento: Zonas de Deslizamiento\n" +
		"2. Después de la línea '### JSON', devuelve únicamente un JSON que sea un array de objetos\n" +
		"   con las llaves: 'id', 'nombre', 'tipo', 'subtipo'.\n" +
		"   - 'tipo' debe ser uno de: PR, PN, PA, Va, Ve, inundacion, deslizamiento.\n" +
		"   - 'subtipo' puede ser string o null.\n" +
		"Lista de POIs:\n" + places.String() +
		"### JSON\n"

	raw, err := a.complete(ctx, prompt, nil, deterministic, 1.0)
	if err != nil {
		return nil, err
	}
	return parseClassifications(raw, req.POIs)
}

// AnalyzeRisk always returns a verdict: when the model fails or answers
// with something unusable, the count-based classifier decides.
func (a *Analyzer) AnalyzeRisk(ctx context.Context, req analysis.RiskRequest) analysis.RiskResponse {
	var places strings.Builder
	for _, p := range req.POIs {
		fmt.Fprintf(&places, "- %s: %s @ [%.6f,%.6f] (types: %s)\n", p.ID, p.Name, p.Lat, p.Lng, strings.Join(p.Types, ", "))
	}
	var center analysis.LatLng
	if req.Center != nil {
		center = *req.Center
	}
	prompt := "Eres un analista de riesgos perimetrales.\n" +
		"Recibes la ubicación del centro y una lista de POIs.\n" +
		"**IMPORTANTE**: Devuelve _únicamente_ un JSON con la siguiente estructura:\n" +
		"{\n" +
		`  "riesgoTotal": "Bajo|Medio|Alto",` + "\n" +
		`  "riesgoResidual": "Bajo|Medio|Alto",` + "\n" +
		`  "riesgoGeografico": "A|I|D",` + "\n" +
		`  "controlesExistentes": [string...]` + "\n" +
		"}\n" +
		fmt.Sprintf("Centro: [%.6f,%.6f]\n", center.Lat, center.Lng) +
		"POIs:\n" + places.String()

	raw, err := a.complete(ctx, prompt, nil, deterministic, 1.0)
	if err != nil {
		slog.Error("risk analysis call failed, using classifier", "error", err)
		return fallbackRisk(req)
	}

	resp, err := parseRisk(raw)
	if err != nil {
		slog.Error("risk analysis response unusable, using classifier", "error", err)
		slog.Debug("bad risk response", "raw", raw)
		return fallbackRisk(req)
	}
	return resp
}

func fallbackRisk(req analysis.RiskRequest) analysis.RiskResponse {
	return analysis.ResponseFromVerdict(risk.ClassifyTags(analysis.Tags(req.POIs)))
}

func (a *Analyzer) GeneralAnalysis(ctx context.Context, req analysis.GeneralRequest) (string, error) {
	var places strings.Builder
	for _, p := range req.POIs {
		fmt.Fprintf(&places, "- %s @ [%.6f,%.6f]\n", p.Name, p.Lat, p.Lng)
	}
	prompt := "Eres un asistente que genera un análisis general de seguridad.\n" +
		"Descripción: " + req.Description + "\n" +
		"POIs:\n" + places.String()
	if req.ImageBase64 != nil {
		prompt += "Se incluye imagen en base64 para contexto visual.\n"
	}
	prompt += "Devuelve un párrafo de resumen (no JSON).\n"

	return a.complete(ctx, prompt, req.ImageBase64, 0.2, 0.9)
}

func (a *Analyzer) ControlsAnalysis(ctx context.Context, req analysis.ControlsRequest) ([]string, error) {
	var places strings.Builder
	for _, p := range req.POIs {
		fmt.Fprintf(&places, "- %s (types: %s)\n", p.Name, strings.Join(p.Types, ", "))
	}
	prompt := "Eres un experto en seguridad y controles.\n" +
		"Con base en estos POIs y (opcionalmente) una imagen en base64:\n" +
		places.String()
	if req.ImageBase64 != nil {
		prompt += "Se incluye imagen en base64.\n"
	}
	prompt += "Devuelve **solo** un JSON con esta forma:\n" +
		"```json\n" +
		`{ "controles_recomendados": [ { "nombre": "...", "tipo": "..." }, ... ] }` + "\n" +
		"```\n"

	raw, err := a.complete(ctx, prompt, req.ImageBase64, 0.2, 0.9)
	if err != nil {
		return nil, err
	}
	return parseControls(raw)
}

// complete sends a single user message. An image, when present, travels as
// an image part next to the text.
func (a *Analyzer) complete(ctx context.Context, prompt string, image *string, temperature, topP float32) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if image != nil && *image != "" {
		msg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: *image}},
		}
	} else {
		msg.Content = prompt
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: temperature,
		TopP:        topP,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion error: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("llm output received", "model", a.model, "len", len(content))
	return content, nil
}
