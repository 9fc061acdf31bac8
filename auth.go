package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/skyrace-game/backend/db"
)

// Sessions are optional: a logged-in racer gets a stable identity on the
// leaderboard, everyone else races as a guest. Nothing in gameplay checks
// auth beyond decorating the connection with a name.

var (
	googleOauthConfig *oauth2.Config
	oauthStateString  string
	jwtSecret         []byte
)

type UserSession struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Guest   bool   `json:"guest"`
	Token   string `json:"token"`
}

type JWTClaims struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Guest   bool   `json:"guest"`
	jwt.RegisteredClaims
}

type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// initAuth sets up the JWT secret and, when Google credentials are present,
// the OAuth flow. Without credentials only guest sessions are available.
func initAuth() {
	jwtSecretStr := os.Getenv("JWT_SECRET")
	if jwtSecretStr == "" {
		secret := make([]byte, 32)
		rand.Read(secret)
		jwtSecret = secret
		Log.Warnf("[AUTH] JWT_SECRET not set, using randomly generated secret (tokens won't survive restarts)")
	} else {
		jwtSecret = []byte(jwtSecretStr)
	}

	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		Log.Infof("[AUTH] Google OAuth not configured, guest sessions only")
		return
	}

	redirectURL := os.Getenv("GOOGLE_REDIRECT_URL")
	if redirectURL == "" {
		redirectURL = "http://localhost:8080/auth/google/callback"
	}

	googleOauthConfig = &oauth2.Config{
		RedirectURL:  redirectURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}

	b := make([]byte, 32)
	rand.Read(b)
	oauthStateString = base64.URLEncoding.EncodeToString(b)
}

func frontendURL() string {
	if u := os.Getenv("FRONTEND_URL"); u != "" {
		return u
	}
	return "http://localhost:3000"
}

func handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if googleOauthConfig == nil {
		http.Error(w, "google login not configured", http.StatusNotImplemented)
		return
	}
	url := googleOauthConfig.AuthCodeURL(oauthStateString, oauth2.AccessTypeOffline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if googleOauthConfig == nil {
		http.Error(w, "google login not configured", http.StatusNotImplemented)
		return
	}

	if r.FormValue("state") != oauthStateString {
		Log.Warnf("[AUTH] invalid OAuth state from %s", r.RemoteAddr)
		http.Redirect(w, r, fmt.Sprintf("%s/login?error=invalid_state", frontendURL()), http.StatusTemporaryRedirect)
		return
	}

	token, err := googleOauthConfig.Exchange(context.Background(), r.FormValue("code"))
	if err != nil {
		Log.Warnf("[AUTH] code exchange failed: %v", err)
		http.Redirect(w, r, fmt.Sprintf("%s/login?error=exchange_failed", frontendURL()), http.StatusTemporaryRedirect)
		return
	}

	userInfo, err := getUserInfo(token.AccessToken)
	if err != nil {
		Log.Warnf("[AUTH] failed to get user info: %v", err)
		http.Redirect(w, r, fmt.Sprintf("%s/login?error=userinfo_failed", frontendURL()), http.StatusTemporaryRedirect)
		return
	}

	// Make sure the racer exists for history and leaderboard lookups.
	if err := db.SaveRacerWithMock(db.Racer{
		UserID:  userInfo.ID,
		Email:   userInfo.Email,
		Name:    userInfo.Name,
		Picture: userInfo.Picture,
	}); err != nil {
		Log.Warnf("[AUTH] failed to save racer profile for %s: %v", userInfo.ID, err)
	}

	jwtToken, err := generateJWT(userInfo.ID, userInfo.Email, userInfo.Name, userInfo.Picture, false)
	if err != nil {
		Log.Errorf("[AUTH] failed to generate JWT: %v", err)
		http.Redirect(w, r, fmt.Sprintf("%s/login?error=token_generation_failed", frontendURL()), http.StatusTemporaryRedirect)
		return
	}

	Log.Infof("[AUTH] user logged in: %s", userInfo.Email)
	http.Redirect(w, r, fmt.Sprintf("%s/auth/callback?token=%s", frontendURL(), jwtToken), http.StatusTemporaryRedirect)
}

func getUserInfo(accessToken string) (*GoogleUserInfo, error) {
	resp, err := http.Get("https://www.googleapis.com/oauth2/v2/userinfo?access_token=" + accessToken)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var userInfo GoogleUserInfo
	if err := json.Unmarshal(data, &userInfo); err != nil {
		return nil, err
	}
	return &userInfo, nil
}

// handleGuestLogin mints a session for an anonymous racer. POST body may
// carry {"name": "..."}; empty names get a generated one.
func handleGuestLogin(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	guestID := "guest_" + uuid.NewString()
	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = "Guest-" + guestID[len(guestID)-6:]
	}

	token, err := generateJWT(guestID, "", name, "", true)
	if err != nil {
		Log.Errorf("[AUTH] failed to generate guest JWT: %v", err)
		http.Error(w, "failed to create guest session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UserSession{ID: guestID, Name: name, Guest: true, Token: token})
}

func generateJWT(userID, email, name, picture string, guest bool) (string, error) {
	claims := JWTClaims{
		UserID:  userID,
		Email:   email,
		Name:    name,
		Picture: picture,
		Guest:   guest,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "skyrace",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func verifyJWT(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func handleVerifySession(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "GET, POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tokenString == "" {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "no token provided"})
		return
	}

	claims, err := verifyJWT(tokenString)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid or expired token"})
		return
	}

	json.NewEncoder(w).Encode(UserSession{
		ID:      claims.UserID,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
		Guest:   claims.Guest,
		Token:   tokenString,
	})
}

func handleLogout(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	// With JWTs, logout is client-side token removal; nothing to tear down.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "logged out successfully"})
}

func setCORSHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", frontendURL())
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}
