package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"betengine/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type placeBetRequest struct {
	Picks      []int32 `json:"picks" validate:"omitempty,max=2,dive,gt=0"`
	ParityPick string  `json:"parityPick" validate:"omitempty,oneof=Odd Even Both"`
	Stake      int64   `json:"stake" validate:"required,gt=0"`
}

type challengeRequest struct {
	OpponentID    int64 `json:"opponentId" validate:"required,gt=0"`
	StakePerRound int64 `json:"stakePerRound" validate:"required,gt=0"`
	Escrow        int64 `json:"escrow" validate:"required,gtefield=StakePerRound"`
}

type numberRequest struct {
	Number int32 `json:"number" validate:"required,gt=0"`
}

type amountRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type paymentsSwitchRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type roundsResponse struct {
	Rounds []models.BroadcastState `json:"rounds"`
}

// decodeRequest reads a JSON body into dst and validates it
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid %s: failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	return nil
}
