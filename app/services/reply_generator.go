package services

import (
	"context"
	"strings"
)

const (
	DefaultTone           = "profesional"
	DefaultCompanyName    = "Nuestro equipo"
	testReplyContactName  = "Usuario de Prueba"
	testReplyConfidence   = 0.95
	automatedReplyTrailer = "Esta es una respuesta generada automáticamente por nuestro asistente IA."
)

// MessageDraftRequest asks for a campaign template
type MessageDraftRequest struct {
	Prompt  string
	Tone    string
	Company string
}

// MessageDraft is a generated campaign template
type MessageDraft struct {
	Message string
	Tone    string
	Prompt  string
}

// ReplyRequest asks for an assistant answer to an incoming message
type ReplyRequest struct {
	Credential    string
	KnowledgeBase string
	Message       string
}

// Reply is the assistant answer
type Reply struct {
	Response    string
	ContactName string
	Confidence  float64
}

// ReplyGenerator produces campaign templates and assistant replies
type ReplyGenerator interface {
	DraftMessage(ctx context.Context, req MessageDraftRequest) (*MessageDraft, error)
	Reply(ctx context.Context, req ReplyRequest) (*Reply, error)
}

// TemplateReplyGenerator answers from canned Spanish templates
type TemplateReplyGenerator struct{}

func NewTemplateReplyGenerator() *TemplateReplyGenerator {
	return &TemplateReplyGenerator{}
}

func (g *TemplateReplyGenerator) DraftMessage(ctx context.Context, req MessageDraftRequest) (*MessageDraft, error) {
	tone := strings.TrimSpace(req.Tone)
	if tone == "" {
		tone = DefaultTone
	}
	company := strings.TrimSpace(req.Company)
	if company == "" {
		company = DefaultCompanyName
	}

	var b strings.Builder
	b.WriteString("¡Hola {nombre}!\n\n")
	b.WriteString("Esperamos que te encuentres muy bien. Te escribimos para compartir contigo una oportunidad especial que no querrás perderte.\n\n")
	b.WriteString(req.Prompt)
	b.WriteString("\n\nSi tienes alguna pregunta, no dudes en contactarnos. Estamos aquí para ayudarte.\n\n")
	b.WriteString("¡Saludos cordiales!\n")
	b.WriteString(company)

	return &MessageDraft{Message: b.String(), Tone: tone, Prompt: req.Prompt}, nil
}

func (g *TemplateReplyGenerator) Reply(ctx context.Context, req ReplyRequest) (*Reply, error) {
	response := "Hola, gracias por tu mensaje: \"" + req.Message + "\"\n\n" +
		"Basándome en la información de nuestro negocio, puedo ayudarte con:\n" +
		"- Información sobre nuestros productos y servicios\n" +
		"- Horarios de atención\n" +
		"- Preguntas frecuentes\n" +
		"- Soporte técnico\n\n" +
		"¿En qué más puedo asistirte?\n\n---\n" +
		automatedReplyTrailer

	return &Reply{
		Response:    response,
		ContactName: testReplyContactName,
		Confidence:  testReplyConfidence,
	}, nil
}
