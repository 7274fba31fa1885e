package steam

import (
	"bytes"
	"encoding/json"
)

type rsaKeyDTO struct {
	Mod       string `json:"publickey_mod"`
	Exp       string `json:"publickey_exp"`
	Timestamp string `json:"timestamp"`
}

type beginAuthDTO struct {
	ClientID  flexString `json:"client_id"`
	RequestID flexString `json:"request_id"`
	SteamID   flexString `json:"steamid"`
}

type pollAuthDTO struct {
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
}

type finalizeDTO struct {
	SteamID      string        `json:"steamID"`
	TransferInfo []transferDTO `json:"transfer_info"`
}

type transferDTO struct {
	URL    string                `json:"url"`
	Params map[string]flexString `json:"params"`
}

type tradeOfferDTO struct {
	Response struct {
		Offer struct {
			TradeOfferID    flexString `json:"tradeofferid"`
			TradeOfferState int        `json:"trade_offer_state"`
		} `json:"offer"`
	} `json:"response"`
}

type acceptDTO struct {
	TradeID                 flexString `json:"tradeid"`
	NeedsMobileConfirmation bool       `json:"needs_mobile_confirmation"`
	StrError                string     `json:"strError"`
}

type confirmationListDTO struct {
	Success  bool              `json:"success"`
	NeedAuth bool              `json:"needauth"`
	Message  string            `json:"message"`
	Conf     []confirmationDTO `json:"conf"`
}

type confirmationDTO struct {
	ID        flexString `json:"id"`
	Nonce     flexString `json:"nonce"`
	CreatorID flexString `json:"creator_id"`
	TypeName  string     `json:"type_name"`
}

type confirmationOpDTO struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// flexString accepts a JSON string, number, bool or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

func (f flexString) String() string {
	return string(f)
}
