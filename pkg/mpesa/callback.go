package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Gateway result codes with dedicated handling.
const (
	ResultCodeSuccess       = "0"
	ResultCodeUserCancelled = "1032"
	ResultCodePending       = "1037"
	ResultCodeTimedOut      = "timeout"
)

// ResultState is the coarse outcome of a push request.
type ResultState string

const (
	StatePending   ResultState = "pending"
	StateCompleted ResultState = "completed"
	StateCancelled ResultState = "cancelled"
	StateFailed    ResultState = "failed"
)

// StateForResultCode maps a callback or query result code onto a ResultState.
func StateForResultCode(code string) ResultState {
	switch strings.TrimSpace(code) {
	case ResultCodeSuccess:
		return StateCompleted
	case ResultCodePending:
		return StatePending
	case ResultCodeUserCancelled:
		return StateCancelled
	default:
		return StateFailed
	}
}

// ErrMalformedCallback is returned when a callback body has no correlation id.
var ErrMalformedCallback = errors.New("malformed mpesa callback")

// Outcome is a normalized gateway result for one push request, whether it
// arrived by callback, timeout notice or status query.
type Outcome struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        string
	ResultDesc        string
	Receipt           string
	Amount            string
	Phone             string
	TransactionDate   string
}

// State classifies the outcome.
func (o Outcome) State() ResultState {
	return StateForResultCode(o.ResultCode)
}

type callbackEnvelope struct {
	Body struct {
		STKCallback *struct {
			MerchantRequestID string     `json:"MerchantRequestID"`
			CheckoutRequestID string     `json:"CheckoutRequestID"`
			ResultCode        flexString `json:"ResultCode"`
			ResultDesc        string     `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string     `json:"Name"`
					Value flexString `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
	// Queue timeout notices carry the id at the top level.
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// ParseCallback decodes an STK result callback body.
func ParseCallback(body []byte) (Outcome, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Outcome{}, errors.Join(ErrMalformedCallback, err)
	}
	cb := env.Body.STKCallback
	if cb == nil || strings.TrimSpace(cb.CheckoutRequestID) == "" {
		return Outcome{}, ErrMalformedCallback
	}

	out := Outcome{
		CheckoutRequestID: strings.TrimSpace(cb.CheckoutRequestID),
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        string(cb.ResultCode),
		ResultDesc:        cb.ResultDesc,
	}
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			out.Receipt = string(item.Value)
		case "Amount":
			out.Amount = string(item.Value)
		case "PhoneNumber":
			out.Phone = string(item.Value)
		case "TransactionDate":
			out.TransactionDate = string(item.Value)
		}
	}
	return out, nil
}

// ParseTimeout decodes a queue timeout notice into a failed Outcome.
func ParseTimeout(body []byte) (Outcome, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Outcome{}, errors.Join(ErrMalformedCallback, err)
	}
	id := strings.TrimSpace(env.CheckoutRequestID)
	if id == "" && env.Body.STKCallback != nil {
		id = strings.TrimSpace(env.Body.STKCallback.CheckoutRequestID)
	}
	if id == "" {
		return Outcome{}, ErrMalformedCallback
	}
	return TimedOut(id), nil
}

// TimedOut is the outcome recorded when no answer arrives in time.
func TimedOut(checkoutRequestID string) Outcome {
	return Outcome{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        ResultCodeTimedOut,
		ResultDesc:        "Transaction timed out",
	}
}

// Acknowledgement is the body the gateway expects back from every callback.
type Acknowledgement struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Accepted acknowledges a callback so the gateway stops retrying it.
var Accepted = Acknowledgement{ResultCode: 0, ResultDesc: "Success"}

// flexString accepts JSON strings and numbers alike; the gateway is not
// consistent about which it sends.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
