package lookbook

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/superlion8/lookbook/models"
	"github.com/superlion8/lookbook/refstore"
	"github.com/superlion8/lookbook/stores"
)

// DefaultImageWindow is how many of the most recent turns keep their
// full inline image payloads. Older turns keep only the image identity:
// a textual placeholder naming the canonical id, with the id still
// registered so tools can resolve it. The bytes age out, the identity
// never does.
const DefaultImageWindow = 6

// UploadedImage is a fresh image attached to the incoming user turn.
type UploadedImage struct {
	ID       string
	URL      string
	Data     []byte
	MIMEType string
}

// UserTurn is the new user message a run starts from.
type UserTurn struct {
	Text   string
	Images []UploadedImage
}

// BuiltContext is the provider-facing context for one run.
type BuiltContext struct {
	Messages     []models.AgentMessage
	ImageContext map[string]*refstore.StoredImage
}

// ContextBuilder converts persisted history plus the new user turn into
// the provider-agnostic message sequence, seeding the reference store as
// it goes.
type ContextBuilder struct {
	// Window is the number of trailing turns that carry full image
	// payloads. Zero means DefaultImageWindow.
	Window int
	// Fetch loads image bytes from a durable URL so recent history
	// images can be re-inlined. Swapped out in tests.
	Fetch  func(url string) (data []byte, mimeType string, err error)
	Logger *log.Logger
}

// NewContextBuilder returns a builder with default policy.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{
		Window: DefaultImageWindow,
		Fetch:  fetchImageURL,
		Logger: log.New(os.Stdout, "[CONTEXT] ", log.LstdFlags),
	}
}

// Build walks history oldest to newest, applies the image window policy,
// and appends the new user turn.
func (b *ContextBuilder) Build(history []stores.ConversationTurn, user UserTurn, refs *refstore.Store) BuiltContext {
	window := b.Window
	if window <= 0 {
		window = DefaultImageWindow
	}

	history = sanitizeTurns(history)

	var messages []models.AgentMessage
	for i, turn := range history {
		inWindow := i >= len(history)-window
		msg := b.turnToMessage(turn, inWindow, refs)
		if len(msg.Parts) > 0 {
			messages = append(messages, msg)
		}
	}

	messages = append(messages, b.userMessage(user, refs))

	ctx := BuiltContext{
		Messages:     messages,
		ImageContext: make(map[string]*refstore.StoredImage, refs.Len()),
	}
	for _, img := range refs.All() {
		ctx.ImageContext[img.CanonicalID] = img
	}
	return ctx
}

// turnToMessage converts one persisted turn. Image URLs become inline
// payloads inside the window and placeholders outside it; either way the
// canonical id is registered.
func (b *ContextBuilder) turnToMessage(turn stores.ConversationTurn, inWindow bool, refs *refstore.Store) models.AgentMessage {
	role := models.RoleUser
	if turn.Role == string(models.RoleModel) {
		role = models.RoleModel
	}

	var parts []models.Part
	if turn.Text != "" {
		parts = append(parts, models.TextPart(turn.Text))
	}

	kinds := []struct {
		urls []string
		kind refstore.ImageKind
	}{
		{turn.ImageURLs(), refstore.KindUploaded},
		{turn.GeneratedURLs(), refstore.KindGenerated},
	}
	for _, group := range kinds {
		for _, url := range group.urls {
			id := refstore.NormalizeRef(url)
			refs.Register(refstore.RegisterOpts{
				ID:      id,
				URL:     url,
				Kind:    group.kind,
				Aliases: []string{url},
			})
			parts = append(parts, b.imagePart(id, url, inWindow))
		}
	}

	return models.AgentMessage{Role: role, Parts: parts}
}

// imagePart inlines the payload inside the window, falling back to the
// placeholder when the bytes cannot be loaded.
func (b *ContextBuilder) imagePart(id, url string, inWindow bool) models.Part {
	if inWindow {
		data, mimeType, err := b.Fetch(url)
		if err == nil && len(data) > 0 {
			return models.InlineImagePart(mimeType, data)
		}
		if err != nil {
			b.Logger.Printf("failed to inline %s, using placeholder: %v", id, err)
		}
	}
	return models.TextPart(fmt.Sprintf("[cached image: %s]", id))
}

// userMessage builds the new turn's message, registering fresh uploads.
func (b *ContextBuilder) userMessage(user UserTurn, refs *refstore.Store) models.AgentMessage {
	var parts []models.Part
	if user.Text != "" {
		parts = append(parts, models.TextPart(user.Text))
	}

	for _, upload := range user.Images {
		opts := refstore.RegisterOpts{
			ID:       upload.ID,
			URL:      upload.URL,
			Data:     upload.Data,
			MIMEType: upload.MIMEType,
			Kind:     refstore.KindUploaded,
		}
		if upload.URL != "" {
			opts.Aliases = append(opts.Aliases, upload.URL)
		}
		id := refs.Register(opts)

		data := upload.Data
		mimeType := upload.MIMEType
		if len(data) == 0 && upload.URL != "" {
			fetched, fetchedMIME, err := b.Fetch(upload.URL)
			if err != nil {
				b.Logger.Printf("failed to load upload %s, using placeholder: %v", id, err)
			} else {
				data, mimeType = fetched, fetchedMIME
			}
		}
		if len(data) > 0 {
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}
			parts = append(parts, models.InlineImagePart(mimeType, data))
		} else {
			parts = append(parts, models.TextPart(fmt.Sprintf("[cached image: %s]", id)))
		}
	}

	return models.AgentMessage{Role: models.RoleUser, Parts: parts}
}

// sanitizeTurns drops turns the provider must not see: placeholders
// still generating and turns that failed before producing content.
func sanitizeTurns(history []stores.ConversationTurn) []stores.ConversationTurn {
	out := make([]stores.ConversationTurn, 0, len(history))
	for _, turn := range history {
		if turn.Status == stores.StatusGenerating {
			continue
		}
		if turn.Status == stores.StatusFailed && turn.Text == "" {
			continue
		}
		out = append(out, turn)
	}
	return out
}

// RegistryPrompt enumerates the known images for the system instructions
// so the model can cite ids instead of re-describing images.
func RegistryPrompt(refs *refstore.Store) string {
	images := refs.All()
	if len(images) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Image registry (reference images by id):\n")
	for i, img := range images {
		desc := img.Description
		if desc == "" {
			desc = string(img.Kind) + " image"
		}
		fmt.Fprintf(&sb, "%d. %s - %s\n", i+1, img.CanonicalID, desc)
	}
	return sb.String()
}

func fetchImageURL(url string) ([]byte, string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, url)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return nil, "", err
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
