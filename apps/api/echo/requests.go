package echoapi

import (
	"github.com/madrasa-app/madrasa/core/account"
)

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token   string          `json:"token"`
		Account account.Account `json:"account"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}

	RegisterResponse struct {
		Account      account.Account `json:"account"`
		DeliveredVia string          `json:"deliveredVia"`
	}

	SendOTPRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SendOTPResponse struct {
		Success      string `json:"success"`
		DeliveredVia string `json:"deliveredVia"`
	}

	VerifyOTPRequest struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"otp" validate:"required"`
	}

	VerifyOTPResponse struct {
		Verified  bool   `json:"verified"`
		AccountID string `json:"accountId"`
	}

	UpdateAccountResponse struct {
		Account account.Account `json:"account"`
		Token   string          `json:"token,omitempty"` // set when the password changed
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)
