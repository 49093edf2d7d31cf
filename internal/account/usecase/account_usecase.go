package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"

	"relaydesk-backend/internal/account/domain"
	"relaydesk-backend/internal/account/dto"
	"relaydesk-backend/internal/account/repository"
	meetingdomain "relaydesk-backend/internal/meeting/domain"
	"relaydesk-backend/pkg/calendar"
	"relaydesk-backend/pkg/crypto"
	"relaydesk-backend/pkg/fcm"
	"relaydesk-backend/pkg/googleauth"
	"relaydesk-backend/pkg/imap"
	"relaydesk-backend/pkg/mailbox"
	"relaydesk-backend/pkg/whatsapp"

	"golang.org/x/oauth2"
)

// AccountUsecase owns accounts, their decrypted credentials and devices
type AccountUsecase interface {
	Get(ctx context.Context, id string) (*domain.Account, error)
	Upsert(ctx context.Context, id string, req *dto.UpsertAccountRequest) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	MailAccounts(ctx context.Context) ([]*domain.Account, error)
	SendingAddresses(ctx context.Context, ownerID string) ([]string, error)

	GoogleCredentials(account *domain.Account) (googleauth.Credentials, error)
	IMAPAccount(account *domain.Account) (imap.Account, error)
	MailQuery(account *domain.Account) mailbox.Query
	WhatsAppCredentials(ctx context.Context, ownerID string) (whatsapp.Credentials, error)
	CalendarFor(ctx context.Context, ownerID string) (meetingdomain.Calendar, error)

	RegisterDevice(ctx context.Context, accountID, token, deviceInfo string) error
	UnregisterDevice(ctx context.Context, token string) error
	NotifyOwner(ctx context.Context, ownerID string, n fcm.NotificationData) error
	SetFCMClient(client *fcm.Client)
}

type accountUsecase struct {
	accountRepo   repository.AccountRepository
	deviceRepo    repository.DeviceTokenRepository
	calendarSvc   *calendar.Service
	fcmClient     *fcm.Client
	encryptionKey string
}

func NewAccountUsecase(accountRepo repository.AccountRepository, deviceRepo repository.DeviceTokenRepository, calendarSvc *calendar.Service, encryptionKey string) AccountUsecase {
	return &accountUsecase{
		accountRepo:   accountRepo,
		deviceRepo:    deviceRepo,
		calendarSvc:   calendarSvc,
		encryptionKey: encryptionKey,
	}
}

// SetFCMClient enables push delivery
func (u *accountUsecase) SetFCMClient(client *fcm.Client) {
	u.fcmClient = client
}

func (u *accountUsecase) Get(ctx context.Context, id string) (*domain.Account, error) {
	account, err := u.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func (u *accountUsecase) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return u.accountRepo.FindByEmail(ctx, email)
}

func (u *accountUsecase) MailAccounts(ctx context.Context) ([]*domain.Account, error) {
	accounts, err := u.accountRepo.ListWithMail(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mail accounts: %w", err)
	}
	out := accounts[:0]
	for _, a := range accounts {
		if a.HasMail() {
			out = append(out, a)
		}
	}
	return out, nil
}

// SendingAddresses lists the owner's reply addresses; an unknown owner
// has none.
func (u *accountUsecase) SendingAddresses(ctx context.Context, ownerID string) ([]string, error) {
	account, err := u.accountRepo.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, nil
	}
	return account.SendingAddresses(), nil
}

func (u *accountUsecase) seal(plain string) (string, error) {
	sealed, err := crypto.Encrypt(plain, u.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt secret: %w", err)
	}
	return sealed, nil
}

// Upsert creates the account on first call and applies every field the
// request carries. Empty secrets leave the stored value untouched.
func (u *accountUsecase) Upsert(ctx context.Context, id string, req *dto.UpsertAccountRequest) (*domain.Account, error) {
	account, err := u.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		account = &domain.Account{ID: id, MailFolder: "INBOX", MailScope: mailbox.ScopeUnreadOnly, FetchLimit: 20}
	}

	if req.Name != "" {
		account.Name = req.Name
	}
	if req.Email != "" {
		account.Email = strings.ToLower(req.Email)
	}

	switch req.MailProvider {
	case "":
	case "none":
		account.MailProvider = domain.MailProviderNone
	case domain.MailProviderGmail, domain.MailProviderIMAP:
		account.MailProvider = req.MailProvider
	default:
		return nil, domain.ErrInvalidProvider
	}

	secrets := []struct {
		plain string
		dst   *string
	}{
		{req.AccessToken, &account.AccessToken},
		{req.RefreshToken, &account.RefreshToken},
		{req.ImapPassword, &account.ImapPassword},
		{req.WhatsAppAccessToken, &account.WhatsAppAccessToken},
	}
	for _, s := range secrets {
		if s.plain == "" {
			continue
		}
		sealed, err := u.seal(s.plain)
		if err != nil {
			return nil, err
		}
		*s.dst = sealed
	}

	if req.ImapHost != "" {
		account.ImapHost = req.ImapHost
	}
	if req.ImapPort != 0 {
		account.ImapPort = req.ImapPort
	}
	if req.ImapUsername != "" {
		account.ImapUsername = req.ImapUsername
	}
	if req.MailFolder != "" {
		account.MailFolder = req.MailFolder
	}
	if req.MailScope != "" {
		account.MailScope = req.MailScope
	}
	if req.FetchLimit != 0 {
		account.FetchLimit = req.FetchLimit
	}
	if req.OutboundFrom != nil {
		from := make([]string, 0, len(req.OutboundFrom))
		for _, addr := range req.OutboundFrom {
			if addr = mailbox.Address(addr); addr != "" {
				from = append(from, addr)
			}
		}
		account.OutboundFrom = from
	}
	if req.CalendarActive != nil {
		account.CalendarActive = *req.CalendarActive
	}
	if req.CalendarID != "" {
		account.CalendarID = req.CalendarID
	}
	if req.WhatsAppPhoneNumberID != "" {
		account.WhatsAppPhoneNumberID = req.WhatsAppPhoneNumberID
	}
	if req.SystemPrompt != nil {
		account.SystemPrompt = *req.SystemPrompt
	}

	if account.MailProvider == domain.MailProviderIMAP && (account.ImapHost == "" || account.ImapUsername == "" || account.ImapPassword == "") {
		return nil, domain.ErrMissingCredentials
	}

	if err := u.accountRepo.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}
	return account, nil
}

// GoogleCredentials decrypts the OAuth tokens and persists refreshes.
func (u *accountUsecase) GoogleCredentials(account *domain.Account) (googleauth.Credentials, error) {
	access, err := crypto.Decrypt(account.AccessToken, u.encryptionKey)
	if err != nil {
		return googleauth.Credentials{}, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refresh, err := crypto.Decrypt(account.RefreshToken, u.encryptionKey)
	if err != nil {
		return googleauth.Credentials{}, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	accountID := account.ID
	return googleauth.Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		OnRefresh: func(token *oauth2.Token) error {
			sealedAccess, err := u.seal(token.AccessToken)
			if err != nil {
				return err
			}
			sealedRefresh := ""
			if token.RefreshToken != "" && token.RefreshToken != refresh {
				if sealedRefresh, err = u.seal(token.RefreshToken); err != nil {
					return err
				}
			}
			return u.accountRepo.UpdateTokens(context.Background(), accountID, sealedAccess, sealedRefresh)
		},
	}, nil
}

func (u *accountUsecase) IMAPAccount(account *domain.Account) (imap.Account, error) {
	password, err := crypto.Decrypt(account.ImapPassword, u.encryptionKey)
	if err != nil {
		return imap.Account{}, fmt.Errorf("failed to decrypt imap password: %w", err)
	}
	return imap.Account{
		Host:     account.ImapHost,
		Port:     account.ImapPort,
		Username: account.ImapUsername,
		Password: password,
	}, nil
}

func (u *accountUsecase) MailQuery(account *domain.Account) mailbox.Query {
	return mailbox.Query{
		Folder: account.MailFolder,
		Scope:  account.MailScope,
		Limit:  account.FetchLimit,
	}.Normalize()
}

func (u *accountUsecase) WhatsAppCredentials(ctx context.Context, ownerID string) (whatsapp.Credentials, error) {
	account, err := u.Get(ctx, ownerID)
	if err != nil {
		return whatsapp.Credentials{}, err
	}
	token, err := crypto.Decrypt(account.WhatsAppAccessToken, u.encryptionKey)
	if err != nil {
		return whatsapp.Credentials{}, fmt.Errorf("failed to decrypt whatsapp token: %w", err)
	}
	return whatsapp.Credentials{PhoneNumberID: account.WhatsAppPhoneNumberID, AccessToken: token}, nil
}

// CalendarFor returns nil when the owner has no usable calendar.
func (u *accountUsecase) CalendarFor(ctx context.Context, ownerID string) (meetingdomain.Calendar, error) {
	account, err := u.accountRepo.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil || !account.CalendarActive || u.calendarSvc == nil {
		return nil, nil
	}
	if account.AccessToken == "" && account.RefreshToken == "" {
		return nil, nil
	}
	creds, err := u.GoogleCredentials(account)
	if err != nil {
		return nil, err
	}
	return u.calendarSvc.ForAccount(creds, account.CalendarID), nil
}

func (u *accountUsecase) RegisterDevice(ctx context.Context, accountID, token, deviceInfo string) error {
	return u.deviceRepo.SaveToken(ctx, accountID, token, deviceInfo)
}

func (u *accountUsecase) UnregisterDevice(ctx context.Context, token string) error {
	return u.deviceRepo.DeleteToken(ctx, token)
}

// NotifyOwner pushes n to every registered device of the owner and
// drops tokens FCM rejects.
func (u *accountUsecase) NotifyOwner(ctx context.Context, ownerID string, n fcm.NotificationData) error {
	if u.fcmClient == nil || ownerID == "" {
		return nil
	}
	tokens, err := u.deviceRepo.GetTokensByAccountID(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failed, err := u.fcmClient.SendToDevices(ctx, tokenStrings, n)
	if err != nil {
		return err
	}
	for _, token := range failed {
		if err := u.deviceRepo.DeleteToken(ctx, token); err != nil {
			log.Printf("[FCM] failed to delete stale token: %v", err)
		}
	}
	return nil
}
