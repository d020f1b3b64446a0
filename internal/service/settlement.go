package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/fee"
	"github.com/iliyamo/easybook/internal/gateway"
	"github.com/iliyamo/easybook/internal/model"
)

// networkBanks maps mobile money networks to the processor's bank codes.
var networkBanks = map[string]string{
	"mtn":        "MTN",
	"vodafone":   "VOD",
	"airteltigo": "ATL",
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

// SettlementService links a business to a processor subaccount, so charges
// can be split at payment time, and to a transfer recipient for payouts.
type SettlementService struct {
	store    SettlementStore
	gw       SettlementGateway
	fees     fee.Calculator
	currency string
	log      *zap.Logger
}

func NewSettlementService(store SettlementStore, gw SettlementGateway, fees fee.Calculator, currency string, log *zap.Logger) *SettlementService {
	return &SettlementService{store: store, gw: gw, fees: fees, currency: currency, log: log}
}

type SetupRequest struct {
	BusinessID   uint64
	BusinessName string
	PhoneNumber  string
	Network      string
}

// Setup creates or refreshes the settlement account of a business.  A
// subaccount that already exists for the same wallet and is still active at
// the processor is reused instead of creating a second one.
func (s *SettlementService) Setup(ctx context.Context, req SetupRequest) (*model.SettlementAccount, error) {
	name := strings.TrimSpace(req.BusinessName)
	phone := strings.TrimSpace(req.PhoneNumber)
	network := strings.ToLower(strings.TrimSpace(req.Network))
	if name == "" {
		return nil, apperr.Validation("business_name is required")
	}
	if !phonePattern.MatchString(phone) {
		return nil, apperr.Validation("phone_number %q is not a valid mobile money number", req.PhoneNumber)
	}
	bank, ok := networkBanks[network]
	if !ok {
		return nil, apperr.Validation("mobile_money_network must be one of mtn, vodafone, airteltigo")
	}

	existing, err := s.store.SettlementAccount(ctx, req.BusinessID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	sameWallet := existing != nil && existing.AccountNumber == phone && existing.SettlementBank == bank

	var sub *gateway.Subaccount
	if sameWallet && existing.SubaccountCode != "" {
		found, err := s.gw.FetchSubaccount(ctx, existing.SubaccountCode)
		switch {
		case err == nil && found.Active:
			sub = found
		case err != nil:
			s.log.Warn("settlementService.Setup existing subaccount lookup failed",
				zap.Uint64("business_id", req.BusinessID), zap.Error(err))
		}
	}
	if sub == nil {
		sub, err = s.gw.CreateSubaccount(ctx, gateway.SubaccountRequest{
			BusinessName:     name,
			SettlementBank:   bank,
			AccountNumber:    phone,
			PercentageCharge: s.fees.PercentageCharge(),
			Description:      "easybook provider " + name,
		})
		if err != nil {
			return nil, err
		}
		s.log.Info("settlementService.Setup subaccount created",
			zap.Uint64("business_id", req.BusinessID), zap.String("subaccount_code", sub.SubaccountCode))
	}

	recipient := ""
	if sameWallet {
		recipient = existing.RecipientCode
	}
	if recipient == "" {
		recipient, err = s.gw.CreateTransferRecipient(ctx, gateway.RecipientRequest{
			Name:          name,
			AccountNumber: phone,
			BankCode:      bank,
			Currency:      s.currency,
		})
		if err != nil {
			return nil, err
		}
	}

	acct := &model.SettlementAccount{
		BusinessID:     req.BusinessID,
		BusinessName:   name,
		SubaccountID:   sub.ID,
		SubaccountCode: sub.SubaccountCode,
		RecipientCode:  recipient,
		SettlementBank: bank,
		AccountNumber:  phone,
		Network:        network,
		IsActive:       sub.Active,
	}
	if err := s.store.SaveSettlementAccount(ctx, acct); err != nil {
		return nil, err
	}
	return s.store.SettlementAccount(ctx, req.BusinessID)
}

func (s *SettlementService) Get(ctx context.Context, businessID uint64) (*model.SettlementAccount, error) {
	return s.store.SettlementAccount(ctx, businessID)
}
