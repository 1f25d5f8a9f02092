package server

import (
	"net/http"
)

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Phone   string `json:"phone"`
		Purpose string `json:"purpose"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := s.app.SendOTP(r.Context(), body.Phone, body.Purpose)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "verification code sent", result)
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Phone string `json:"phone"`
		OTP   string `json:"otp"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.app.VerifyOTP(r.Context(), body.Phone, body.OTP); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "phone verified", nil)
}

func (s *Server) handlePhoneRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Phone string `json:"phone"`
		Name  string `json:"name"`
		OTP   string `json:"otp"`
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	user, token, err := s.app.PhoneRegister(r.Context(), body.Phone, body.Name, body.OTP, body.Email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, authResponse{User: user, Token: token})
}

func (s *Server) handlePhoneLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Phone string `json:"phone"`
		OTP   string `json:"otp"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	user, token, err := s.app.PhoneLogin(r.Context(), body.Phone, body.OTP)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, authResponse{User: user, Token: token})
}
