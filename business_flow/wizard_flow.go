package businessflow

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"
	"time"

	"github.com/amirphl/kartu-tanda-boga/app/dto"
	"github.com/amirphl/kartu-tanda-boga/app/services"
	"github.com/amirphl/kartu-tanda-boga/media"
	"github.com/amirphl/kartu-tanda-boga/models"
	"github.com/amirphl/kartu-tanda-boga/repository"
	"github.com/amirphl/kartu-tanda-boga/utils"
	"github.com/google/uuid"
)

// WizardFlow drives the signup wizard on behalf of the HTTP layer
type WizardFlow interface {
	StartSession(ctx context.Context, existingSessionID string, metadata *ClientMetadata) (*dto.StartSessionResponse, error)
	GetState(ctx context.Context, sessionID string, includePhoto bool) (*dto.WizardStateResponse, error)
	UpdateDetails(ctx context.Context, sessionID string, req *dto.UpdateDetailsRequest) (*dto.WizardStateResponse, error)
	NextFromDetails(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error)
	UploadPhoto(ctx context.Context, sessionID string, data []byte) (*dto.WizardStateResponse, error)
	CapturePhoto(ctx context.Context, sessionID string, req *dto.CapturePhotoRequest) (*dto.CapturePhotoResponse, error)
	NextFromPhoto(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error)
	ListCards(ctx context.Context, sessionID string) (*dto.CardsResponse, error)
	MoveCard(ctx context.Context, sessionID string, req *dto.MoveCardRequest) (*dto.CardsResponse, error)
	Submit(ctx context.Context, sessionID string, metadata *ClientMetadata) (*dto.WizardStateResponse, error)
	Back(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error)
	BackToForm(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error)
	StartOver(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error)
	DownloadCard(ctx context.Context, sessionID string) (*dto.CardDownload, error)
}

// WizardFlowImpl implements WizardFlow
type WizardFlowImpl struct {
	registry      *WizardRegistry
	tokens        services.TokenService
	catalog       *CardCatalog
	fetcher       services.ImageFetcher
	recordRepo    repository.MembershipRecordRepository
	cameraTimeout time.Duration
}

// NewWizardFlow creates the wizard flow. recordRepo may be nil when membership records
// are not kept; fetcher may be nil, in which case downloaded cards use the default art.
func NewWizardFlow(
	registry *WizardRegistry,
	tokens services.TokenService,
	catalog *CardCatalog,
	fetcher services.ImageFetcher,
	recordRepo repository.MembershipRecordRepository,
	cameraTimeout time.Duration,
) WizardFlow {
	return &WizardFlowImpl{
		registry:      registry,
		tokens:        tokens,
		catalog:       catalog,
		fetcher:       fetcher,
		recordRepo:    recordRepo,
		cameraTimeout: cameraTimeout,
	}
}

func (f *WizardFlowImpl) wizard(ctx context.Context, sessionID string) (*Wizard, error) {
	w, _, err := f.registry.Get(ctx, sessionID)
	return w, err
}

func (f *WizardFlowImpl) stateResponse(w *Wizard, includePhoto bool) *dto.WizardStateResponse {
	resp := ToWizardStateResponse(w.ID(), w.State(), includePhoto)
	resp.Submitting = w.Submitting()
	resp.CameraOpen = w.CameraOpen()
	return &resp
}

func (f *WizardFlowImpl) StartSession(ctx context.Context, existingSessionID string, metadata *ClientMetadata) (*dto.StartSessionResponse, error) {
	sessionID := existingSessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	w, resumed, err := f.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := f.tokens.GenerateSessionToken(sessionID)
	if err != nil {
		return nil, NewBusinessError("SESSION_TOKEN_FAILED", "Failed to issue session token", err)
	}

	if metadata != nil {
		log.Printf("wizard session started: session=%s resumed=%t ip=%s request_id=%s", sessionID, resumed, metadata.IPAddress, metadata.RequestID)
	}

	return &dto.StartSessionResponse{
		SessionToken: token,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt.Format(time.RFC3339),
		Resumed:      resumed,
		State:        *f.stateResponse(w, true),
	}, nil
}

func (f *WizardFlowImpl) GetState(ctx context.Context, sessionID string, includePhoto bool) (*dto.WizardStateResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return f.stateResponse(w, includePhoto), nil
}

func (f *WizardFlowImpl) UpdateDetails(ctx context.Context, sessionID string, req *dto.UpdateDetailsRequest) (*dto.WizardStateResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := w.UpdateDetails(DetailsPatch{
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Birthday: req.Birthday,
	}); err != nil {
		return nil, err
	}
	return f.stateResponse(w, false), nil
}

func (f *WizardFlowImpl) NextFromDetails(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := w.NextFromDetails(); err != nil {
		return nil, err
	}
	return f.stateResponse(w, false), nil
}

func (f *WizardFlowImpl) UploadPhoto(ctx context.Context, sessionID string, data []byte) (*dto.WizardStateResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := w.UploadPhoto(data); err != nil {
		return nil, err
	}
	return f.stateResponse(w, true), nil
}

// CapturePhoto runs a posted camera frame through the capture adapter: the frame backs a
// device that is opened with the usual constraint fallbacks, captured from, normalized
// and released again.
func (f *WizardFlowImpl) CapturePhoto(ctx context.Context, sessionID string, req *dto.CapturePhotoRequest) (*dto.CapturePhotoResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	facing := media.FacingFront
	if strings.TrimSpace(req.Facing) != "" {
		if facing, err = media.ParseFacing(req.Facing); err != nil {
			return nil, NewBusinessError("INVALID_FACING", "facing must be user or environment", err)
		}
	}

	frame, err := media.DecodeImage(req.Frame)
	if err != nil {
		return nil, err
	}

	device := media.NewFrameDevice(frame, facing, req.Torch)
	adapter := media.NewCaptureAdapter(device, f.cameraTimeout)

	info, err := w.OpenCamera(ctx, adapter, facing)
	if err != nil {
		return nil, err
	}

	if req.Torch {
		if err := w.SetTorch(true); err != nil {
			log.Printf("wizard torch not applied: session=%s err=%v", sessionID, err)
		}
	}

	_, err = w.CapturePhoto(ctx)
	w.CloseCamera()
	if err != nil {
		return nil, err
	}

	return &dto.CapturePhotoResponse{
		Facing:     string(info.Facing),
		Mirrored:   info.Mirrored,
		Constraint: info.Constraint,
		State:      *f.stateResponse(w, true),
	}, nil
}

func (f *WizardFlowImpl) NextFromPhoto(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if f.catalog != nil {
		w.SetCatalog(f.catalog.Cards(ctx))
	}
	if _, err := w.NextFromPhoto(); err != nil {
		return nil, err
	}
	return f.stateResponse(w, false), nil
}

func (f *WizardFlowImpl) cardsResponse(w *Wizard) (*dto.CardsResponse, error) {
	visible, err := w.VisibleCards()
	if err != nil {
		return nil, err
	}
	state := w.State()
	return &dto.CardsResponse{
		Cards:           ToCardDesignDTOs(w.Catalog()),
		CurrentIndex:    state.CardIndex,
		Visible:         ToCardDesignDTOs(visible),
		SelectedCardURL: state.SelectedCardURL,
	}, nil
}

func (f *WizardFlowImpl) ListCards(ctx context.Context, sessionID string) (*dto.CardsResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if f.catalog != nil {
		w.SetCatalog(f.catalog.Cards(ctx))
	}
	return f.cardsResponse(w)
}

func (f *WizardFlowImpl) MoveCard(ctx context.Context, sessionID string, req *dto.MoveCardRequest) (*dto.CardsResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch req.Direction {
	case "next":
		_, err = w.NextCard()
	case "prev":
		_, err = w.PrevCard()
	case "select":
		if req.Index == nil {
			return nil, NewBusinessError("INDEX_REQUIRED", "index is required when selecting a card", ErrCardIndexOutOfRange)
		}
		_, err = w.SelectCard(*req.Index)
	default:
		return nil, NewBusinessError("INVALID_DIRECTION", "direction must be next, prev or select", nil)
	}
	if err != nil {
		return nil, err
	}
	return f.cardsResponse(w)
}

func (f *WizardFlowImpl) Submit(ctx context.Context, sessionID string, metadata *ClientMetadata) (*dto.WizardStateResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	before := w.State()
	state, err := w.Submit(ctx)
	if err != nil {
		return nil, err
	}

	if before.Created == nil && state.Created != nil {
		f.saveMembershipRecord(ctx, sessionID, state, metadata)
	}
	return f.stateResponse(w, false), nil
}

// saveMembershipRecord keeps a local copy of a confirmed membership. Failures are logged
// only; the membership already exists remotely.
func (f *WizardFlowImpl) saveMembershipRecord(ctx context.Context, sessionID string, state models.WizardState, metadata *ClientMetadata) {
	if f.recordRepo == nil {
		return
	}

	record := models.NewMembershipRecord(sessionID, state.Values, state.Created)
	if metadata != nil {
		if metadata.IPAddress != "" {
			record.IPAddress = utils.ToPtr(metadata.IPAddress)
		}
		if metadata.UserAgent != "" {
			record.UserAgent = utils.ToPtr(metadata.UserAgent)
		}
	}
	if record.CardImage == "" {
		record.CardImage = state.SelectedCardURL
	}

	if err := f.recordRepo.Save(ctx, record); err != nil {
		log.Printf("membership record not saved: session=%s serial=%s err=%v", sessionID, record.Serial, err)
	}
}

func (f *WizardFlowImpl) Back(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := w.Back(); err != nil {
		return nil, err
	}
	return f.stateResponse(w, false), nil
}

func (f *WizardFlowImpl) BackToForm(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := w.BackToForm(ctx); err != nil {
		return nil, err
	}
	return f.stateResponse(w, false), nil
}

func (f *WizardFlowImpl) StartOver(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := w.StartOver(ctx); err != nil {
		return nil, err
	}
	return f.stateResponse(w, false), nil
}

// DownloadCard renders the member's card as a PNG.
func (f *WizardFlowImpl) DownloadCard(ctx context.Context, sessionID string) (*dto.CardDownload, error) {
	w, err := f.wizard(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	state := w.State()
	if state.Created == nil {
		return nil, ErrNoSubmissionResult
	}
	created := state.Created

	cardURL := created.CardImage
	if cardURL == "" {
		cardURL = state.SelectedCardURL
	}

	var avatar image.Image
	if photo := state.Values.PhotoFile; photo != nil {
		if img, err := media.DecodeImage(photo.Bytes()); err == nil {
			avatar = img
		} else {
			log.Printf("card avatar decode failed: session=%s err=%v", sessionID, err)
		}
	}
	if avatar == nil {
		avatar = f.fetchImage(ctx, sessionID, created.ProfileImage)
	}

	name := firstNonEmpty(created.Name, state.Values.Name)
	png, err := media.RenderCard(media.CardContent{
		Background: f.fetchImage(ctx, sessionID, cardURL),
		Avatar:     avatar,
		Name:       name,
		Phone:      utils.GroupDigits(firstNonEmpty(state.Values.Phone, created.Phone)),
		Email:      firstNonEmpty(state.Values.Email, created.Email),
		Serial:     created.Serial,
	})
	if err != nil {
		return nil, err
	}

	return &dto.CardDownload{
		Filename:    fmt.Sprintf("kartu-tanda-boga-%s.png", utils.Slugify(name)),
		ContentType: "image/png",
		Data:        png,
	}, nil
}

// fetchImage downloads and decodes a remote image, returning nil on any problem so the
// card falls back to its defaults.
func (f *WizardFlowImpl) fetchImage(ctx context.Context, sessionID, rawURL string) image.Image {
	if f.fetcher == nil || strings.TrimSpace(rawURL) == "" {
		return nil
	}
	fetched, err := f.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		log.Printf("card image fetch failed: session=%s url=%s err=%v", sessionID, rawURL, err)
		return nil
	}
	img, err := media.DecodeImage(fetched.Data)
	if err != nil {
		log.Printf("card image decode failed: session=%s url=%s err=%v", sessionID, rawURL, err)
		return nil
	}
	return img
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
