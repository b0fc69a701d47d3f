package subscription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwetu-labs/whatsdrip/internal/beem"
	"github.com/kwetu-labs/whatsdrip/internal/domain"
	"github.com/kwetu-labs/whatsdrip/internal/drip"
	"github.com/kwetu-labs/whatsdrip/internal/store/file"
)

type fakeTemplateSender struct {
	phone      string
	templateID string
	err        error
	calls      int
}

func (f *fakeTemplateSender) SendTemplate(_ context.Context, phone, templateID string, _ []string) (*beem.SendResult, error) {
	f.calls++
	f.phone, f.templateID = phone, templateID
	if f.err != nil {
		return nil, f.err
	}
	return &beem.SendResult{JobID: "job-9"}, nil
}

type fakeEnroller struct {
	sub      domain.Subscriber
	sequence []domain.Step
	err      error
}

func (f *fakeEnroller) Enroll(_ context.Context, sub domain.Subscriber, sequence []domain.Step) (*drip.Entry, error) {
	f.sub, f.sequence = sub, sequence
	if f.err != nil {
		return nil, f.err
	}
	return &drip.Entry{ID: "entry-1"}, nil
}

func intPtr(v int) *int { return &v }

func newTestService(t *testing.T) (*Service, *fakeTemplateSender, *fakeEnroller, *MirrorHandler) {
	t.Helper()

	st, err := file.New(t.TempDir())
	require.NoError(t, err)

	sender := &fakeTemplateSender{}
	enroller := &fakeEnroller{}
	mirror := NewMirrorHandler(st, st, sender)

	registry := NewRegistry(
		NewSingleMessageHandler(sender),
		NewDripSequenceHandler(enroller),
		NewHybridDripHandler(enroller),
		mirror,
	)

	return NewService(st, st, registry), sender, enroller, mirror
}

func validHybridConfig() *WebhookConfig {
	return &WebhookConfig{
		ListID:   "list-1",
		ListName: "Main",
		Mode:     domain.ModeHybrid,
		Sequence: []domain.Step{
			{Channel: domain.ChannelEmail, Subject: "Hi", Delay: intPtr(0)},
			{Channel: domain.ChannelWhatsApp, TemplateID: "7", Delay: intPtr(2), DelayUnit: domain.UnitHours},
		},
	}
}

func TestRegistryUnknownMode(t *testing.T) {
	registry := NewRegistry(NewSingleMessageHandler(&fakeTemplateSender{}))

	_, err := registry.Get("broadcast_blast")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestCreateGeneratesToken(t *testing.T) {
	service, _, _, _ := newTestService(t)

	created, err := service.Create(context.Background(), validHybridConfig())
	require.NoError(t, err)

	assert.Len(t, created.Token, 16)
	assert.Equal(t, "Main", created.Name, "webhook name defaults to list name")
	assert.False(t, created.CreatedAt.IsZero())

	loaded, err := service.GetByToken(context.Background(), created.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeHybrid, loaded.Mode)
}

func TestCreateRejectsInvalidSequence(t *testing.T) {
	service, _, _, _ := newTestService(t)

	config := validHybridConfig()
	config.Sequence[1].DelayUnit = "fortnights"

	_, err := service.Create(context.Background(), config)
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Problems[0], "invalid delay_unit")
}

func TestCreateRejectsUnknownMode(t *testing.T) {
	service, _, _, _ := newTestService(t)

	config := validHybridConfig()
	config.Mode = "carrier_pigeon"

	_, err := service.Create(context.Background(), config)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestCreateDefaultsToSingleMode(t *testing.T) {
	service, _, _, _ := newTestService(t)

	_, err := service.Create(context.Background(), &WebhookConfig{ListID: "l1"})
	require.Error(t, err, "single mode without template_id is invalid")

	created, err := service.Create(context.Background(), &WebhookConfig{ListID: "l1", TemplateID: "5"})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeSingle, created.Mode)
}

func TestGetByListReturnsLatest(t *testing.T) {
	service, _, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.Create(ctx, validHybridConfig())
	require.NoError(t, err)

	second, err := service.Create(ctx, validHybridConfig())
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	_, err = service.GetByList(ctx, "missing")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	found, err := service.GetByList(ctx, "list-1")
	require.NoError(t, err)
	assert.Contains(t, []string{first.Token, second.Token}, found.Token)
}

func TestDeleteWebhookConfig(t *testing.T) {
	service, _, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, validHybridConfig())
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, created.Token))

	_, err = service.GetByToken(ctx, created.Token)
	assert.ErrorIs(t, err, ErrWebhookNotFound)

	assert.ErrorIs(t, service.Delete(ctx, created.Token), ErrWebhookNotFound)
}

func TestDripModeRejectsEmailSteps(t *testing.T) {
	handler := NewDripSequenceHandler(&fakeEnroller{})

	problems := handler.ValidateConfig(&WebhookConfig{
		Mode: domain.ModeDrip,
		Sequence: []domain.Step{
			{Channel: domain.ChannelEmail, Subject: "Hi", Delay: intPtr(0)},
		},
	})
	require.NotEmpty(t, problems)
	assert.Contains(t, problems[0], "whatsapp channel")
}

func TestHybridHandlerRequiresPhoneOnlyForWhatsApp(t *testing.T) {
	enroller := &fakeEnroller{}
	handler := NewHybridDripHandler(enroller)
	ctx := context.Background()

	emailOnly := &WebhookConfig{
		Mode: domain.ModeHybrid,
		Sequence: []domain.Step{
			{Channel: domain.ChannelEmail, Subject: "Hi", Delay: intPtr(0)},
		},
	}

	result, err := handler.HandleSubscription(ctx, domain.Subscriber{Email: "a@example.com", ListID: "l1"}, emailOnly)
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 1, result.EmailSteps)

	withWhatsApp := validHybridConfig()
	result, err = handler.HandleSubscription(ctx, domain.Subscriber{Email: "a@example.com", ListID: "l1"}, withWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
	assert.Contains(t, result.Message, "Phone number is required")
}

func TestSingleHandlerSendsImmediately(t *testing.T) {
	sender := &fakeTemplateSender{}
	handler := NewSingleMessageHandler(sender)

	config := &WebhookConfig{Mode: domain.ModeSingle, TemplateID: "42"}

	result, err := handler.HandleSubscription(context.Background(), domain.Subscriber{
		Email: "a@example.com", Phone: "+255700000001",
	}, config)
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "job-9", result.JobID)
	assert.Equal(t, "42", sender.templateID)
	assert.Equal(t, "+255700000001", sender.phone)
}

func TestMirrorHandlerCachesAndTriggers(t *testing.T) {
	service, sender, _, mirror := newTestService(t)
	ctx := context.Background()

	config := &WebhookConfig{
		ListID:          "list-1",
		Mode:            domain.ModeMirror,
		AutoresponderID: "ar-1",
		TemplateMap:     map[string]string{"1": "101", "2": "102"},
	}
	created, err := service.Create(ctx, config)
	require.NoError(t, err)

	// Subscription caches contact info, sends nothing.
	result, err := mirror.HandleSubscription(ctx, domain.Subscriber{
		Email: "a@example.com", Phone: "+255700000001", Name: "Asha", ListID: "list-1",
	}, created)
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Zero(t, sender.calls)

	// The autoresponder trigger resolves the cached phone number.
	result, err = mirror.HandleAutoresponderTrigger(ctx, AutoresponderEvent{
		Email: "a@example.com", ListID: "list-1", Step: 2,
	}, created)
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "102", sender.templateID)
	assert.Equal(t, "+255700000001", sender.phone)

	// Unmapped steps are reported, not sent.
	result, err = mirror.HandleAutoresponderTrigger(ctx, AutoresponderEvent{
		Email: "a@example.com", ListID: "list-1", Step: 3,
	}, created)
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)

	// Unknown subscribers have no cached phone.
	result, err = mirror.HandleAutoresponderTrigger(ctx, AutoresponderEvent{
		Email: "stranger@example.com", ListID: "list-1", Step: 1,
	}, created)
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
	assert.Contains(t, result.Message, "Phone number not found")
}
