package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"gorm.io/gorm"

	"github.com/shakdv/yatube/config"
	"github.com/shakdv/yatube/middleware"
	"github.com/shakdv/yatube/models"
	"github.com/shakdv/yatube/utils"
)

const sessionDuration = 72 * time.Hour

// AuthController handles signup, login and logout for the HTML forms plus
// GitHub social login.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// SignupForm renders the empty registration form.
func (a *AuthController) SignupForm(ctx *gin.Context) {
	a.renderSignup(ctx, gin.H{})
}

// Signup handles local account registration with bcrypt hashing and signs
// the new user in.
func (a *AuthController) Signup(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.PostForm("username"))
	firstName := strings.TrimSpace(ctx.PostForm("first_name"))
	lastName := strings.TrimSpace(ctx.PostForm("last_name"))
	email := strings.TrimSpace(ctx.PostForm("email"))
	password := ctx.PostForm("password")
	confirm := ctx.PostForm("confirm")

	fields := gin.H{
		"username":   username,
		"first_name": firstName,
		"last_name":  lastName,
		"email":      email,
	}

	if l := len([]rune(username)); l < 2 || l > 30 || !validUsername(username) {
		fields["form_error"] = "username must be 2-30 characters: letters, digits, '-' or '_'"
		a.renderSignup(ctx, fields)
		return
	}
	if password != confirm {
		fields["form_error"] = "the two passwords do not match"
		a.renderSignup(ctx, fields)
		return
	}
	if len(password) < 6 || len(password) > 64 {
		fields["form_error"] = "password must be 6-64 characters"
		a.renderSignup(ctx, fields)
		return
	}

	var existing models.User
	if err := a.db.Where("username = ?", username).First(&existing).Error; err == nil {
		fields["form_error"] = "this username is already taken"
		a.renderSignup(ctx, fields)
		return
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		fields["form_error"] = "registration failed, please retry"
		a.renderSignup(ctx, fields)
		return
	}

	user := models.User{
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
	}
	if err := a.db.Create(&user).Error; err != nil {
		// Unique index race: a concurrent signup with the same name wins.
		fields["form_error"] = "this username is already taken"
		a.renderSignup(ctx, fields)
		return
	}

	a.signIn(ctx, &user, "/")
}

// LoginForm renders the login form, preserving the next return parameter.
func (a *AuthController) LoginForm(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "login.html", htmlData(ctx, gin.H{
		"title": "Sign in",
		"next":  ctx.Query("next"),
	}))
}

// Login verifies credentials, sets the session cookie and honors ?next=.
func (a *AuthController) Login(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.PostForm("username"))
	password := ctx.PostForm("password")
	next := ctx.PostForm("next")

	var user models.User
	err := a.db.Where("username = ?", username).First(&user).Error
	if err != nil || !utils.CheckPassword(user.PasswordHash, password) {
		ctx.HTML(http.StatusUnauthorized, "login.html", htmlData(ctx, gin.H{
			"title":      "Sign in",
			"next":       next,
			"username":   username,
			"form_error": "invalid username or password",
		}))
		return
	}

	a.signIn(ctx, &user, next)
}

// Logout revokes the session token until its natural expiration and clears
// the cookie.
func (a *AuthController) Logout(ctx *gin.Context) {
	if token, err := ctx.Cookie(middleware.AuthCookieName); err == nil && token != "" {
		expiresAt := time.Now().Add(sessionDuration)
		if claims, err := utils.ParseToken(token); err == nil && claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		utils.BlacklistToken(token, expiresAt)
	}
	ctx.SetCookie(middleware.AuthCookieName, "", -1, "/", "", false, true)
	ctx.Redirect(http.StatusFound, "/")
}

// OAuthRedirect sends the user to GitHub's authorization page with a
// single-use state token.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	conf, err := a.oauthConfig()
	if err != nil {
		renderNotFound(ctx)
		return
	}
	state := uuid.New().String()
	utils.SaveState(state, 10*time.Minute)
	ctx.Redirect(http.StatusFound, conf.AuthCodeURL(state))
}

// OAuthCallback exchanges the authorization code for a GitHub identity,
// provisions a local account on first login and signs the user in.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	if !utils.ConsumeState(ctx.Query("state")) {
		renderNotFound(ctx)
		return
	}
	conf, err := a.oauthConfig()
	if err != nil {
		renderNotFound(ctx)
		return
	}

	tctx, cancel := context.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()
	token, err := conf.Exchange(tctx, ctx.Query("code"))
	if err != nil {
		ctx.HTML(http.StatusBadGateway, "login.html", htmlData(ctx, gin.H{
			"title":      "Sign in",
			"form_error": "GitHub sign-in failed, please retry",
		}))
		return
	}

	ghUser, err := fetchGitHubUser(tctx, token)
	if err != nil {
		ctx.HTML(http.StatusBadGateway, "login.html", htmlData(ctx, gin.H{
			"title":      "Sign in",
			"form_error": "GitHub sign-in failed, please retry",
		}))
		return
	}

	user, err := a.findOrCreateOAuthUser(ghUser)
	if err != nil {
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return
	}
	a.signIn(ctx, user, "/")
}

func (a *AuthController) renderSignup(ctx *gin.Context, data gin.H) {
	status := http.StatusOK
	if data["form_error"] != nil {
		status = http.StatusBadRequest
	}
	data["title"] = "Sign up"
	ctx.HTML(status, "signup.html", htmlData(ctx, data))
}

// signIn issues the session cookie and redirects to next (same-site paths
// only) or the global feed.
func (a *AuthController) signIn(ctx *gin.Context, user *models.User, next string) {
	token, err := utils.GenerateToken(user.ID, user.Username, sessionDuration)
	if err != nil {
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return
	}
	ctx.SetCookie(middleware.AuthCookieName, token, int(sessionDuration.Seconds()), "/", "", false, true)

	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = "/"
	}
	ctx.Redirect(http.StatusFound, next)
}

func (a *AuthController) oauthConfig() (*oauth2.Config, error) {
	cfg := config.Get()
	if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
		return nil, errors.New("github oauth is not configured")
	}
	return &oauth2.Config{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		Endpoint:     github.Endpoint,
		RedirectURL:  cfg.OAuthRedirectBase + "/auth/oauth/github/callback",
		Scopes:       []string{"read:user"},
	}, nil
}

type oauthUser struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func fetchGitHubUser(ctx context.Context, token *oauth2.Token) (*oauthUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github user endpoint returned %d", resp.StatusCode)
	}

	var u oauthUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, err
	}
	if u.Login == "" {
		return nil, errors.New("github user has no login")
	}
	return &u, nil
}

func (a *AuthController) findOrCreateOAuthUser(data *oauthUser) (*models.User, error) {
	providerID := fmt.Sprintf("%d", data.ID)

	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", "github", providerID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// First login: derive a free username from the GitHub login.
	username := data.Login
	for i := 0; ; i++ {
		candidate := username
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", username, i)
		}
		var cnt int64
		if err := a.db.Model(&models.User{}).Where("username = ?", candidate).Count(&cnt).Error; err != nil {
			return nil, err
		}
		if cnt == 0 {
			username = candidate
			break
		}
	}

	user = models.User{
		Username:   username,
		FirstName:  data.Name,
		Email:      data.Email,
		Provider:   "github",
		ProviderID: providerID,
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// validUsername allows letters, digits, '-' and '_'.
func validUsername(s string) bool {
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}
