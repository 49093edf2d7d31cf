package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "relaydesk-backend/cmd/api"
	accountDelivery "relaydesk-backend/internal/account/delivery"
	accountdomain "relaydesk-backend/internal/account/domain"
	accountRepo "relaydesk-backend/internal/account/repository"
	accountUsecase "relaydesk-backend/internal/account/usecase"
	activityDelivery "relaydesk-backend/internal/activity/delivery"
	activitydomain "relaydesk-backend/internal/activity/domain"
	activityRepo "relaydesk-backend/internal/activity/repository"
	activityUsecase "relaydesk-backend/internal/activity/usecase"
	channelDelivery "relaydesk-backend/internal/channel/delivery"
	channelUsecase "relaydesk-backend/internal/channel/usecase"
	inboxDelivery "relaydesk-backend/internal/inbox/delivery"
	inboxdomain "relaydesk-backend/internal/inbox/domain"
	inboxRepo "relaydesk-backend/internal/inbox/repository"
	inboxUsecase "relaydesk-backend/internal/inbox/usecase"
	"relaydesk-backend/internal/intent"
	interactionDelivery "relaydesk-backend/internal/interaction/delivery"
	interactiondomain "relaydesk-backend/internal/interaction/domain"
	interactionRepo "relaydesk-backend/internal/interaction/repository"
	interactionUsecase "relaydesk-backend/internal/interaction/usecase"
	meetingDelivery "relaydesk-backend/internal/meeting/delivery"
	meetingdomain "relaydesk-backend/internal/meeting/domain"
	meetingRepo "relaydesk-backend/internal/meeting/repository"
	meetingScheduler "relaydesk-backend/internal/meeting/scheduler"
	meetingUsecase "relaydesk-backend/internal/meeting/usecase"
	"relaydesk-backend/internal/notification"
	profileDelivery "relaydesk-backend/internal/profile/delivery"
	profiledomain "relaydesk-backend/internal/profile/domain"
	profileRepo "relaydesk-backend/internal/profile/repository"
	profileUsecase "relaydesk-backend/internal/profile/usecase"
	"relaydesk-backend/internal/responder"
	"relaydesk-backend/internal/syncjob"
	"relaydesk-backend/pkg/ai"
	"relaydesk-backend/pkg/calendar"
	"relaydesk-backend/pkg/chroma"
	"relaydesk-backend/pkg/config"
	"relaydesk-backend/pkg/database"
	"relaydesk-backend/pkg/fcm"
	"relaydesk-backend/pkg/gmail"
	"relaydesk-backend/pkg/googleauth"
	"relaydesk-backend/pkg/imap"
	"relaydesk-backend/pkg/smtp"
	"relaydesk-backend/pkg/whatsapp"

	gcal "google.golang.org/api/calendar/v3"
	gmailapi "google.golang.org/api/gmail/v1"
)

// gmailWatchRenewal re-arms Gmail push before the 7 day expiry
const gmailWatchRenewal = 24 * time.Hour

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&accountdomain.Account{},
		&accountdomain.DeviceToken{},
		&activitydomain.ActivityEvent{},
		&profiledomain.Profile{},
		&interactiondomain.Interaction{},
		&meetingdomain.Meeting{},
		&inboxdomain.Message{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Google APIs share one OAuth app
	googleAuth := googleauth.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret,
		gmailapi.GmailModifyScope, gcal.CalendarScope)
	gmailService := gmail.NewService(googleAuth)
	calendarService := calendar.NewService(googleAuth)
	imapService := imap.NewIMAPService(cfg.MailFetchTimeout)
	smtpSender := smtp.NewSender(syncjob.SendTimeout)
	whatsappClient := whatsapp.NewClient(cfg.WhatsAppAPIVersion)

	// Initialize repositories (dependency injection)
	accountRepository := accountRepo.NewAccountRepository(db)
	deviceRepository := accountRepo.NewDeviceTokenRepository(db)
	activityRepository := activityRepo.NewActivityRepository(db)
	interactionRepository := interactionRepo.NewInteractionRepository(db)
	meetingRepository := meetingRepo.NewMeetingRepository(db)
	messageRepository := inboxRepo.NewMessageRepository(db)
	// Merging profiles moves every row that points at the source profile
	profileRepository := profileRepo.NewProfileRepository(db,
		interactionRepo.ReassignProfile,
		meetingRepo.ReassignProfile,
		inboxRepo.ReassignProfile,
	)

	// Accounts and alerts
	accounts := accountUsecase.NewAccountUsecase(accountRepository, deviceRepository, calendarService, cfg.EncryptionKey)
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push alerts disabled): %v", err)
		} else {
			accounts.SetFCMClient(fcmClient)
		}
	} else {
		log.Printf("[WARN] No Firebase credentials configured, push alerts disabled")
	}
	activity := activityUsecase.NewActivityUsecase(activityRepository, accounts)

	// Vector index for past replies (optional)
	var exchangeIndex interactionUsecase.ExchangeIndex
	if cfg.ChromaAPIKey != "" {
		chromaClient, err := chroma.NewChromaClient(cfg)
		if err != nil {
			log.Printf("[WARN] Failed to initialize Chroma client, similar replies disabled: %v", err)
		} else {
			exchangeIndex = chromaClient
		}
	} else {
		log.Println("[WARN] CHROMA_API_KEY not set, similar replies disabled")
	}

	// Reply generation with runtime-updatable Ollama settings
	api.InitRuntimeConfig(cfg.OllamaBaseURL, cfg.OllamaModel)
	generator, err := ai.NewReplyGenerator(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiApiKey,
		GeminiModel:   cfg.GeminiModel,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	}, ai.NewOllamaServiceWithGetters(api.GetRuntimeOllamaBaseURL, api.GetRuntimeOllamaModel))
	if err != nil {
		log.Printf("[WARN] Failed to initialize AI provider, replies fall back to a fixed text: %v", err)
	} else {
		log.Printf("[AI] Reply generator initialized with provider: %s", cfg.AIProvider)
	}

	// Use cases
	profiles := profileUsecase.NewProfileUsecase(profileRepository, activity)
	ledger := interactionUsecase.NewLedgerUsecase(interactionRepository, activity, exchangeIndex)
	meetings := meetingUsecase.NewMeetingUsecase(meetingRepository, accounts, activity)
	inbox := inboxUsecase.NewInboxUsecase(messageRepository, accounts)
	reply := responder.NewResponder(profiles, ledger, generator, intent.NewExtractor(), meetings, accounts, inbox, activity)
	reply.SetGenerateTimeout(cfg.AITimeout)
	channels := channelUsecase.NewChannelUsecase(inbox, reply, whatsappClient, accounts, activity)

	// Background jobs
	mailSync := syncjob.NewMailSync(accounts, gmailService, imapService, inbox, cfg.MailFetchTimeout)
	outbound := syncjob.NewOutbound(accounts, inbox, reply, gmailService, imapService, smtpSender,
		syncjob.SMTPSettings{Host: cfg.SMTPHost, Port: cfg.SMTPPort}, activity, cfg.OutboundBatchSize)
	mailJob := syncjob.NewJob(syncjob.JobMailSync, cfg.MailSyncInterval, mailSync.Run, cfg.SyncFailureThreshold, activity)
	outboundJob := syncjob.NewJob(syncjob.JobOutbound, cfg.OutboundInterval, outbound.Run, cfg.SyncFailureThreshold, activity)
	jobs := syncjob.NewRegistry(mailJob, outboundJob)
	mailJob.Start(ctx)
	outboundJob.Start(ctx)
	defer jobs.StopAll()

	if cfg.MeetingReminderEnabled {
		reminders := meetingScheduler.NewMeetingReminderScheduler(meetingRepository, accounts, cfg.MeetingReminderLead)
		reminders.Start()
		defer reminders.Stop()
	}

	// Gmail push (Pub/Sub) only when a project is configured
	if cfg.GoogleProjectID != "" {
		notifService, err := notification.NewService(cfg.GoogleProjectID, cfg.GooglePubSubTopic, accounts, mailJob, gmailService, cfg.GoogleCredentials)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(ctx)
			go notifService.RenewWatches(ctx, gmailWatchRenewal)
			defer notifService.Close()
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, Gmail push disabled (polling only)")
	}

	// Initialize HTTP handler
	handler := api.NewHandler(cfg, api.Handlers{
		Account:     accountDelivery.NewAccountHandler(accounts),
		Profile:     profileDelivery.NewProfileHandler(profiles),
		Interaction: interactionDelivery.NewInteractionHandler(ledger),
		Meeting:     meetingDelivery.NewMeetingHandler(meetings),
		Inbox:       inboxDelivery.NewInboxHandler(inbox),
		Activity:    activityDelivery.NewActivityHandler(activity),
		Channel: channelDelivery.NewChannelHandler(channels, accounts, channelDelivery.WebhookConfig{
			VerifyToken: cfg.WhatsAppVerifyToken,
			AppSecret:   cfg.WhatsAppAppSecret,
		}),
	}, jobs)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := handler.Start(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
}
