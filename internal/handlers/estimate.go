package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/snapcal/snapcal/internal/apperrors"
	"github.com/snapcal/snapcal/internal/handlers/render"
	"github.com/snapcal/snapcal/internal/handlers/userctx"
	"github.com/snapcal/snapcal/internal/logger"
	"github.com/snapcal/snapcal/internal/models"
	"github.com/snapcal/snapcal/internal/service/vision"
)

const (
	// Upload field name and the size cap
	photoField   = "photo"
	maxPhotoSize = 8 << 20 // 8 MiB

	defaultEstimatesLimit = 20
	maxEstimatesLimit     = 100
)

// Image types the vision api accepts
var allowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type estimateJSON struct {
	ID          uuid.UUID       `json:"id"`
	DishName    string          `json:"dish_name"`
	Calories    decimal.Decimal `json:"calories"`
	ProteinsG   decimal.Decimal `json:"proteins_g"`
	FatsG       decimal.Decimal `json:"fats_g"`
	CarbsG      decimal.Decimal `json:"carbs_g"`
	WeightG     decimal.Decimal `json:"weight_g"`
	Confidence  decimal.Decimal `json:"confidence"`
	SpentCredit int64           `json:"spent_credit"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toEstimateJSON(e models.Estimate) estimateJSON {
	return estimateJSON{
		ID:          e.ID,
		DishName:    e.DishName,
		Calories:    e.Calories,
		ProteinsG:   e.ProteinsG,
		FatsG:       e.FatsG,
		CarbsG:      e.CarbsG,
		WeightG:     e.WeightG,
		Confidence:  e.Confidence,
		SpentCredit: e.SpentCredit,
		CreatedAt:   e.CreatedAt,
	}
}

func handleCreateEstimate(estimateService estimateService, l logger.Logger) http.Handler {
	type credits struct {
		Remaining int64 `json:"remaining"`
		Used      int64 `json:"used"`
	}
	type response struct {
		Estimate estimateJSON `json:"estimate"`
		Credits  credits      `json:"credits"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// Reject oversized uploads before buffering them
		r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize)

		image, mimeType, err := readPhoto(r)
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := estimateService.EstimateFromPhoto(r.Context(), user.ID, image, mimeType)

		var visionErr *vision.VisionError
		switch {
		case err == nil:
			render.JSON(w, response{
				Estimate: toEstimateJSON(result.Estimate),
				Credits: credits{
					Remaining: result.Account.Remaining(),
					Used:      result.Account.CreditsUsed,
				},
			})
		case errors.Is(err, apperrors.ErrInsufficientCredits):
			render.ServiceError(w, "Insufficient credits", http.StatusTooManyRequests)
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Credit account not found", http.StatusNotFound)
		case errors.As(err, &visionErr):
			// Credits are already spent at this point, surface the upstream failure
			l.Warn("Vision api failed after consume", "code", visionErr.Code, "error", err)
			render.ServiceError(w, "Estimation service unavailable", http.StatusBadGateway)
		default:
			l.Error("Failed to estimate photo", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListEstimates(estimateService estimateService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		limit, err := limitParam(r, defaultEstimatesLimit, maxEstimatesLimit)
		if err != nil {
			render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
			return
		}

		estimates, err := estimateService.List(r.Context(), user.ID, limit)
		if err != nil {
			l.Error("Failed to list estimates", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		out := make([]estimateJSON, 0, len(estimates))
		for _, e := range estimates {
			out = append(out, toEstimateJSON(e))
		}

		render.JSON(w, out)
	})
}

// Read the photo from the multipart form and sniff its content type
func readPhoto(r *http.Request) ([]byte, string, error) {
	file, _, err := r.FormFile(photoField)
	if err != nil {
		return nil, "", errors.New("photo file is required")
	}
	defer file.Close() // nolint:errcheck

	image, err := io.ReadAll(file)
	if err != nil {
		return nil, "", errors.New("failed to read photo")
	}
	if len(image) == 0 {
		return nil, "", errors.New("photo file is empty")
	}

	// Sniff the real type, the client supplied header is not trusted
	mimeType := http.DetectContentType(image)
	if !allowedPhotoTypes[mimeType] {
		return nil, "", errors.New("photo must be jpeg, png or webp")
	}

	return image, mimeType, nil
}
