package httpapi

import (
	"net/http"

	"questplane/pkg/errutil"
	"questplane/services/campaign"
	"questplane/services/member"
	"questplane/services/participation"
	"questplane/services/reward"
	"questplane/services/streak"
	"questplane/services/submission"
	"questplane/services/verifier"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// walletHeader carries the caller's wallet address. Signature-based
// wallet authentication sits in front of this service.
const walletHeader = "X-Wallet-Address"

type Handler struct {
	campaigns      *campaign.Service
	members        *member.Service
	submissions    *submission.Service
	verifiers      *verifier.Service
	streaks        *streak.Service
	participations *participation.Service
	rewards        *reward.Service
}

type HandlerParams struct {
	fx.In

	Campaigns      *campaign.Service
	Members        *member.Service
	Submissions    *submission.Service
	Verifiers      *verifier.Service
	Streaks        *streak.Service
	Participations *participation.Service
	Rewards        *reward.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		campaigns:      p.Campaigns,
		members:        p.Members,
		submissions:    p.Submissions,
		verifiers:      p.Verifiers,
		streaks:        p.Streaks,
		participations: p.Participations,
		rewards:        p.Rewards,
	}
}

func callerWallet(c *gin.Context) (string, bool) {
	wallet := c.GetHeader(walletHeader)
	if wallet == "" {
		_ = c.Error(errutil.Unauthorized("missing wallet address"))
		return "", false
	}
	return wallet, true
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	var req campaign.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}
	req.OwnerWallet = wallet

	out, err := h.campaigns.CreateCampaign(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	req := &campaign.ListCampaignsRequest{
		OwnerWallet: c.Query("owner"),
		OnlyActive:  c.Query("active") == "true",
	}
	out, err := h.campaigns.ListCampaigns(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out})
}

func (h *Handler) GetCampaign(c *gin.Context) {
	out, err := h.campaigns.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) UpdateCampaign(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	var req campaign.UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}
	req.CampaignID = c.Param("id")
	req.OwnerWallet = wallet

	out, err := h.campaigns.UpdateCampaign(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) TransitionCampaign(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	var req struct {
		Status campaign.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	out, err := h.campaigns.Transition(c.Request.Context(), c.Param("id"), wallet, req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) UploadBanner(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		_ = c.Error(errutil.BadRequest("missing banner file", errutil.WithErr(err)))
		return
	}
	defer file.Close()

	out, err := h.campaigns.UploadBanner(c.Request.Context(),
		c.Param("id"), wallet, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetBanner(c *gin.Context) {
	url, err := h.campaigns.BannerURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}

func (h *Handler) JoinCampaign(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	out, err := h.submissions.Join(c.Request.Context(), c.Param("id"), wallet)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) SubmitTask(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	var req struct {
		Payload map[string]any `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	out, err := h.submissions.SubmitTask(c.Request.Context(),
		c.Param("id"), c.Param("task_id"), wallet, req.Payload)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListSubmissions(c *gin.Context) {
	out, err := h.submissions.ListSubmissions(c.Request.Context(), &submission.ListSubmissionsRequest{
		CampaignID: c.Param("id"),
		Wallet:     c.Query("wallet"),
		Kind:       submission.Kind(c.Query("kind")),
		Status:     submission.Status(c.Query("status")),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": out})
}

func (h *Handler) GetSubmission(c *gin.Context) {
	out, err := h.submissions.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ReviewSubmission(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	var req struct {
		Decision submission.Decision `json:"decision"`
		Notes    string              `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	out, err := h.submissions.Review(c.Request.Context(),
		c.Param("id"), wallet, req.Decision, req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// VerifyTask runs the verifier matching the task's type and returns the
// verification report. It does not create or mutate submissions.
func (h *Handler) VerifyTask(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	task, err := h.campaigns.GetTask(ctx, c.Param("id"), c.Param("task_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	switch task.Type {
	case campaign.TaskXFollow:
		out, err := h.verifiers.VerifyFollow(ctx, wallet, task.TargetAccount)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, out)

	case campaign.TaskXPost:
		var req struct {
			PostURL string `json:"post_url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
			return
		}
		out, err := h.verifiers.VerifyPost(ctx, wallet, req.PostURL, verifier.PostCriteria{
			RequiredHashtags: []string(task.Hashtags),
			RequiredMentions: []string(task.MentionAccounts),
			MinChars:         task.MinChars,
		})
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, out)

	case campaign.TaskCustom:
		var req struct {
			Attributes map[string]any `json:"attributes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
			return
		}
		verified, err := h.verifiers.VerifyCustom(ctx, wallet, task.CustomRule, req.Attributes)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"verified": verified})

	default:
		_ = c.Error(errutil.UnprocessableEntity("task type cannot be verified"))
	}
}

func (h *Handler) GetParticipation(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	out, err := h.participations.GetParticipation(c.Request.Context(), c.Param("id"), wallet)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetProfile(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	out, err := h.members.GetOrCreateProfile(c.Request.Context(), wallet)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) BeginLink(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	authURL, err := h.members.BeginLink(c.Request.Context(), wallet)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorization_url": authURL})
}

func (h *Handler) CompleteLink(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		_ = c.Error(errutil.BadRequest("state and code are required"))
		return
	}

	out, err := h.members.CompleteLink(c.Request.Context(), state, code)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Unlink(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	if err := h.members.Unlink(c.Request.Context(), wallet); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetStreakProgress(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	out, err := h.streaks.GetProgress(c.Request.Context(), member.CanonicalWallet(wallet))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ListMilestones(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"milestones": streak.Milestones()})
}

func (h *Handler) ListRaffleTickets(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	out, err := h.streaks.ListTickets(c.Request.Context(), member.CanonicalWallet(wallet))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": out})
}

func (h *Handler) ListRewardEvents(c *gin.Context) {
	wallet, ok := callerWallet(c)
	if !ok {
		return
	}

	out, err := h.rewards.ListEvents(c.Request.Context(), wallet)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}
