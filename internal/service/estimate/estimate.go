package estimate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snapcal/snapcal/internal/metrics"
	"github.com/snapcal/snapcal/internal/models"
	"github.com/snapcal/snapcal/internal/repository"
	"github.com/snapcal/snapcal/internal/service/vision"
)

// Action name the pricing table knows the estimate under
const ActionName = "estimate"

// Analyzes meal photos
type visionClient interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (vision.Analysis, error)
}

// Charges credits for paid actions
type creditService interface {
	CostOf(action string) int64
	Consume(ctx context.Context, userID uuid.UUID, amount int64, description string) (models.Account, error)
}

// Runs the paid meal photo estimation: charge credits first, ask the
// vision model, persist what it answered
type EstimateService struct {
	credits creditService
	vision  visionClient

	// Storage to access long term data
	storage repository.Storage
}

func NewService(credits creditService, vision visionClient, storage repository.Storage) *EstimateService {
	return &EstimateService{
		credits: credits,
		vision:  vision,
		storage: storage,
	}
}

// Result of one estimation together with the account state after the charge
type Result struct {
	Estimate models.Estimate
	Account  models.Account
}

// Estimate nutrition for the photo
// Credits are consumed before the model is asked and stay spent if the
// model fails: there is no refund in the ledger taxonomy
func (s *EstimateService) EstimateFromPhoto(ctx context.Context, userID uuid.UUID, image []byte, mimeType string) (Result, error) {
	cost := s.credits.CostOf(ActionName)

	account, err := s.credits.Consume(ctx, userID, cost, "/api/user/estimate")
	if err != nil {
		return Result{}, err
	}
	metrics.CreditsConsumed.Add(float64(cost))

	analysis, err := s.vision.Analyze(ctx, image, mimeType)
	if err != nil {
		metrics.VisionRequests.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("vision analysis failed: %w", err)
	}
	metrics.VisionRequests.WithLabelValues("ok").Inc()

	estimate, err := s.storage.Estimate().Create(ctx, models.Estimate{
		ID:          uuid.New(),
		UserID:      userID,
		DishName:    analysis.DishName,
		Calories:    analysis.Calories,
		ProteinsG:   analysis.ProteinsG,
		FatsG:       analysis.FatsG,
		CarbsG:      analysis.CarbsG,
		WeightG:     analysis.WeightG,
		Confidence:  analysis.Confidence,
		SpentCredit: cost,
		CreatedAt:   time.Now().Truncate(time.Microsecond),
	})
	if err != nil {
		return Result{}, fmt.Errorf("can't save estimate. Err: %w", err)
	}

	return Result{Estimate: estimate, Account: account}, nil
}

// List user estimates from newest to oldest
// limit <= 0 means no limit
func (s *EstimateService) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Estimate, error) {
	return s.storage.Estimate().List(ctx, userID, limit)
}
