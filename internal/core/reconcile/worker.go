// Package reconcile moves payments that are waiting on a connector forward
// by syncing them in the background.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"payswitch/internal/domain/payment"
	"payswitch/internal/envelope"
	"payswitch/internal/orchestrator"
	"payswitch/internal/store/repositories"
)

type Worker struct {
	orch     *orchestrator.Orchestrator
	intents  repositories.IntentRepository
	accounts repositories.MerchantConnectorAccountRepository
	aesKey   []byte

	pollEvery time.Duration
	minAge    time.Duration
	batch     int
	parallel  int
	now       func() time.Time
}

func NewWorker(
	orch *orchestrator.Orchestrator,
	intents repositories.IntentRepository,
	accounts repositories.MerchantConnectorAccountRepository,
	aesKey []byte,
	pollEvery, minAge time.Duration,
) *Worker {
	if pollEvery <= 0 {
		pollEvery = 15 * time.Second
	}
	if minAge <= 0 {
		minAge = 30 * time.Second
	}
	return &Worker{
		orch:      orch,
		intents:   intents,
		accounts:  accounts,
		aesKey:    aesKey,
		pollEvery: pollEvery,
		minAge:    minAge,
		batch:     50,
		parallel:  8,
		now:       time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	log.Info().Dur("every", w.pollEvery).Msg("reconcile worker: started")
	t := time.NewTicker(w.pollEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconcile worker: stopping")
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	intents, err := w.intents.ListUnresolved(ctx, w.now().Add(-w.minAge), w.batch)
	if err != nil {
		log.Error().Err(err).Msg("reconcile worker: listing payments failed")
		return
	}
	if len(intents) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallel)
	for _, in := range intents {
		in := in
		g.Go(func() error {
			if err := w.handleOne(gctx, in); err != nil {
				log.Error().Err(err).Str("payment_id", in.ID).Str("connector", in.Connector).Msg("reconcile worker: sync failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// handleOne syncs one payment. Whatever the outcome the payment's updated_at
// moves, so a connector that keeps failing is retried after minAge rather
// than on every tick.
func (w *Worker) handleOne(ctx context.Context, in *payment.Intent) error {
	c, err := w.common(ctx, in)
	if err != nil {
		_ = w.intents.RecordAttempt(ctx, in.ID, in.Connector, "", in.Status)
		return err
	}

	rd := envelope.New[envelope.PSync, envelope.SyncData, envelope.PaymentsResponseData](c, envelope.SyncData{
		ConnectorTransactionID: in.ConnectorTransactionID,
		CaptureMethod:          in.CaptureMethod,
		Amount:                 in.Amount,
		Currency:               in.Currency,
	})
	rd = w.orch.PSync(ctx, rd)

	resp, e := rd.Response()
	if e != nil {
		_ = w.intents.RecordAttempt(ctx, in.ID, in.Connector, "", in.Status)
		return fmt.Errorf("psync %s: %w", in.ID, e)
	}
	if rd.Status != in.Status {
		log.Info().
			Str("payment_id", in.ID).
			Str("from", string(in.Status)).
			Str("to", string(rd.Status)).
			Msg("reconcile worker: payment moved")
	}
	return w.intents.RecordAttempt(ctx, in.ID, in.Connector, resp.ResourceID, rd.Status)
}

func (w *Worker) common(ctx context.Context, in *payment.Intent) (envelope.Common, error) {
	mca, err := w.accounts.FindByMerchantAndConnector(ctx, in.MerchantID, in.Connector)
	if err != nil {
		return envelope.Common{}, fmt.Errorf("connector account %s/%s: %w", in.MerchantID, in.Connector, err)
	}
	auth, err := mca.OpenAuth(w.aesKey)
	if err != nil {
		return envelope.Common{}, err
	}
	if auth, err = auth.ForCurrency(string(in.Currency)); err != nil {
		return envelope.Common{}, err
	}
	attemptID := uuid.NewString()
	return envelope.Common{
		Connector:                   in.Connector,
		MerchantID:                  in.MerchantID,
		PaymentID:                   in.ID,
		AttemptID:                   attemptID,
		ConnectorRequestReferenceID: attemptID,
		Status:                      in.Status,
		ConnectorAuthType:           auth,
		MerchantConnectorAccountID:  mca.ID,
		TestMode:                    mca.TestMode,
		GatewaySystem:               in.FeatureMetadata.GatewaySystem,
	}, nil
}
