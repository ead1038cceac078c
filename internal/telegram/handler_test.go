package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBot struct {
	mock.Mock
	baseURL string
}

func (m *MockBot) GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error) {
	args := m.Called(ctx, params)
	f, _ := args.Get(0).(*models.File)
	return f, args.Error(1)
}

func (m *MockBot) FileDownloadLink(f *models.File) string {
	return m.baseURL + "/" + f.FilePath
}

func (m *MockBot) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	args := m.Called(ctx, params)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MockBot) SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error) {
	args := m.Called(ctx, params)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MockBot) SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, content, style domain.ByteImage,
	params domain.Params) (domain.ByteImage, error) {
	args := m.Called(ctx, content, style, params)
	img, _ := args.Get(0).(domain.ByteImage)
	return img, args.Error(1)
}

func pngBytes(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func photoServer(t *testing.T) *httptest.Server {
	t.Helper()

	files := map[string][]byte{
		"/content": pngBytes(t, 12, 8, color.NRGBA{R: 255, A: 255}),
		"/style":   pngBytes(t, 6, 6, color.NRGBA{B: 255, A: 255}),
		"/broken":  []byte("not an image"),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func styleUpdate(caption string, contentFileID string) *models.Update {
	msg := &models.Message{
		ID:      7,
		Chat:    models.Chat{ID: 100},
		Caption: caption,
		Photo:   []models.PhotoSize{{FileID: "style", FileSize: 1000}},
	}
	if contentFileID != "" {
		msg.ReplyToMessage = &models.Message{
			ID:    6,
			Chat:  models.Chat{ID: 100},
			Photo: []models.PhotoSize{{FileID: contentFileID, FileSize: 1000}},
		}
	}

	return &models.Update{Message: msg}
}

func solidResult(t *testing.T) domain.ByteImage {
	t.Helper()

	img, err := domain.NewByteImage(2, 2, 3, []uint8{0, 255, 0, 0, 255, 0, 0, 255, 0, 0, 255, 0})
	require.NoError(t, err)

	return img
}

func expectGetFile(mb *MockBot, ids ...string) {
	for _, id := range ids {
		mb.On("GetFile", mock.Anything, &bot.GetFileParams{FileID: id}).
			Return(&models.File{FileID: id, FilePath: id}, nil).Once()
	}
}

func expectReply(mb *MockBot, text string) {
	mb.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *bot.SendMessageParams) bool {
		return p.Text == text && p.ChatID == int64(100) && p.ReplyParameters.MessageID == 7
	})).Return(&models.Message{ID: 8}, nil).Once()
}

var defaults = domain.Params{Density: 0.5, Sharpness: 0.5}

func TestHandle(t *testing.T) {
	srv := photoServer(t)
	usage := NewHandler(nil, nil, Options{}).usage()

	tests := []struct {
		name      string
		update    *models.Update
		opts      Options
		setupMock func(mb *MockBot, mr *MockRunner)
	}{
		{
			name:      "no message",
			update:    &models.Update{},
			setupMock: func(_ *MockBot, _ *MockRunner) {},
		},
		{
			name:      "other command",
			update:    styleUpdate("/scale 10", "content"),
			setupMock: func(_ *MockBot, _ *MockRunner) {},
		},
		{
			name:   "stylizes with defaults",
			update: styleUpdate("/style", "content"),
			setupMock: func(mb *MockBot, mr *MockRunner) {
				expectGetFile(mb, "content", "style")
				mr.On("Run", mock.Anything,
					mock.MatchedBy(func(c domain.ByteImage) bool { return c.Width() == 12 && c.Height() == 8 }),
					mock.MatchedBy(func(s domain.ByteImage) bool { return s.Width() == 6 }),
					defaults).Return(solidResult(t), nil).Once()
				mb.On("SendPhoto", mock.Anything, mock.MatchedBy(func(p *bot.SendPhotoParams) bool {
					upload, ok := p.Photo.(*models.InputFileUpload)
					return ok && upload.Filename == "7.png" && p.ReplyParameters.MessageID == 7
				})).Return(&models.Message{ID: 9}, nil).Once()
			},
		},
		{
			name:   "stylizes with explicit params and bot suffix",
			update: styleUpdate("/style@styler_bot 1 0", "content"),
			setupMock: func(mb *MockBot, mr *MockRunner) {
				expectGetFile(mb, "content", "style")
				mr.On("Run", mock.Anything, mock.Anything, mock.Anything,
					domain.Params{Density: 1, Sharpness: 0}).Return(solidResult(t), nil).Once()
				mb.On("SendPhoto", mock.Anything, mock.Anything).Return(&models.Message{ID: 9}, nil).Once()
			},
		},
		{
			name:   "not a reply",
			update: styleUpdate("/style", ""),
			setupMock: func(mb *MockBot, _ *MockRunner) {
				expectReply(mb, usage)
			},
		},
		{
			name:   "bad params",
			update: styleUpdate("/style much", "content"),
			setupMock: func(mb *MockBot, _ *MockRunner) {
				expectReply(mb, usage)
			},
		},
		{
			name:   "params out of range",
			update: styleUpdate("/style 3", "content"),
			setupMock: func(mb *MockBot, mr *MockRunner) {
				expectGetFile(mb, "content", "style")
				mr.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("%w: density", domain.ErrParameterOutOfRange)).Once()
				expectReply(mb, usage)
			},
		},
		{
			name:   "unreadable content",
			update: styleUpdate("/style", "broken"),
			setupMock: func(mb *MockBot, _ *MockRunner) {
				expectGetFile(mb, "broken")
				expectReply(mb, "could not read one of the photos")
			},
		},
		{
			name:   "content over pixel budget",
			update: styleUpdate("/style", "content"),
			opts:   Options{MaxPixels: 50},
			setupMock: func(mb *MockBot, _ *MockRunner) {
				expectGetFile(mb, "content")
				expectReply(mb, "could not read one of the photos")
			},
		},
		{
			name:   "telegram file error",
			update: styleUpdate("/style", "content"),
			setupMock: func(mb *MockBot, _ *MockRunner) {
				mb.On("GetFile", mock.Anything, mock.Anything).Return(nil, errors.New("flood")).Once()
				expectReply(mb, "failed to stylize photo: content photo: error getting file from telegram api: flood")
			},
		},
		{
			name:   "model failure",
			update: styleUpdate("/style", "content"),
			setupMock: func(mb *MockBot, mr *MockRunner) {
				expectGetFile(mb, "content", "style")
				mr.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, domain.ErrModelInvocation).Once()
				expectReply(mb, "the style model failed to process these photos")
			},
		},
		{
			name:   "chat not allowed",
			update: styleUpdate("/style", "content"),
			opts:   Options{AllowedChatIDs: []int64{1, 2}},
			setupMock: func(mb *MockBot, _ *MockRunner) {
				expectReply(mb, fmt.Sprintf(forbidden, 100))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mb := &MockBot{baseURL: srv.URL}
			mr := new(MockRunner)
			mb.On("SendChatAction", mock.Anything, mock.Anything).Return(true, nil).Maybe()
			tc.setupMock(mb, mr)

			opts := tc.opts
			opts.Defaults = defaults
			h := NewHandler(mb, mr, opts)
			h.Handle(t.Context(), nil, tc.update)

			mb.AssertExpectations(t)
			mr.AssertExpectations(t)
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		description string
		args        string
		want        string
		wantArgs    string
	}{
		{description: "bare command", args: "/style", want: "/style", wantArgs: ""},
		{description: "with args", args: "/style 0.3 0.7", want: "/style", wantArgs: "0.3 0.7"},
		{description: "bot suffix", args: "/style@styler_bot 1", want: "/style", wantArgs: "1"},
		{description: "padded", args: "  /style   0.2 ", want: "/style", wantArgs: "0.2"},
		{description: "empty on no input", args: "", want: "", wantArgs: ""},
	}

	for _, testCase := range tests {
		t.Run(testCase.description, func(t *testing.T) {
			assert.Equal(t, testCase.want, ParseCommand(testCase.args))
			assert.Equal(t, testCase.wantArgs, ParseCommandArgs(testCase.args))
		})
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		description string
		args        string
		want        domain.Params
		wantErr     bool
	}{
		{description: "defaults", args: "", want: defaults},
		{description: "density only", args: "0.9", want: domain.Params{Density: 0.9, Sharpness: 0.5}},
		{description: "both", args: "0 1", want: domain.Params{Density: 0, Sharpness: 1}},
		{description: "not a number", args: "a", wantErr: true},
		{description: "too many", args: "0.1 0.2 0.3", wantErr: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.description, func(t *testing.T) {
			got, err := ParseParams(testCase.args, defaults)
			if testCase.wantErr {
				assert.ErrorIs(t, err, domain.ErrParameterOutOfRange)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.want, got)
		})
	}
}

func TestPickPhoto(t *testing.T) {
	photos := []models.PhotoSize{
		{FileID: "small", FileSize: 10_000},
		{FileID: "medium", FileSize: 100_000},
		{FileID: "large", FileSize: 900_000},
	}

	tests := []struct {
		name     string
		maxBytes int64
		want     string
	}{
		{name: "no limit takes largest", maxBytes: 0, want: "large"},
		{name: "largest that fits", maxBytes: 500_000, want: "medium"},
		{name: "nothing fits falls back to smallest", maxBytes: 5, want: "small"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pickPhoto(photos, tc.maxBytes))
		})
	}
}
