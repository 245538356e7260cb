package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/discid"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type codedError interface {
	Code() string
}

func (h *httpHandler) handleLookup(c *gin.Context) {
	view, err := h.discIDs.Lookup(c.Request.Context(), c.Param("discid"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lookupResponse{
		CDTOC:       newCDTOCPayload(view.CDTOC, view.TOC),
		Attachments: newAttachmentPayloads(view.Attachments),
	})
}

func (h *httpHandler) handlePrepareAttach(c *gin.Context) {
	view, err := h.discIDs.PrepareAttach(c.Request.Context(), discid.AttachRequest{
		TOC:         c.Query("toc"),
		MediumID:    c.Query("medium"),
		ArtistID:    c.Query("artist"),
		ArtistName:  c.Query("artist-name"),
		ReleaseName: c.Query("release-name"),
		Page:        h.page(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAttachResponse(view))
}

func (h *httpHandler) handleAttach(c *gin.Context) {
	editor, ok := editorFromContext(c)
	if !ok {
		h.redirectToLogin(c)
		return
	}
	outcome, err := h.discIDs.Attach(c.Request.Context(), editor, discid.AttachSubmission{
		TOC:      formValue(c, "toc"),
		MediumID: formValue(c, "medium"),
		EditNote: formValue(c, "edit_note"),
	})
	h.respondOutcome(c, outcome, err)
}

func (h *httpHandler) handlePrepareMove(c *gin.Context) {
	view, err := h.discIDs.PrepareMove(c.Request.Context(), discid.MoveRequest{
		MediumCDTOCID:  c.Query("toc"),
		TargetMediumID: c.Query("medium"),
		ReleaseName:    c.Query("release-name"),
		Page:           h.page(c),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMoveResponse(view))
}

func (h *httpHandler) handleMove(c *gin.Context) {
	editor, ok := editorFromContext(c)
	if !ok {
		h.redirectToLogin(c)
		return
	}
	outcome, err := h.discIDs.Move(c.Request.Context(), editor, discid.MoveSubmission{
		MediumCDTOCID:  formValue(c, "toc"),
		TargetMediumID: formValue(c, "medium"),
		EditNote:       formValue(c, "edit_note"),
	})
	h.respondOutcome(c, outcome, err)
}

func (h *httpHandler) handlePrepareRemove(c *gin.Context) {
	view, err := h.discIDs.PrepareRemove(c.Request.Context(), discid.RemoveRequest{
		CDTOCID:  c.Query("cdtoc_id"),
		MediumID: c.Query("medium_id"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	response, err := newRemoveResponse(view)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleRemove(c *gin.Context) {
	editor, ok := editorFromContext(c)
	if !ok {
		h.redirectToLogin(c)
		return
	}
	outcome, err := h.discIDs.Remove(c.Request.Context(), editor, discid.RemoveRequest{
		CDTOCID:  formValue(c, "cdtoc_id"),
		MediumID: formValue(c, "medium_id"),
	}, formValue(c, "edit_note"))
	h.respondOutcome(c, outcome, err)
}

func (h *httpHandler) handlePrepareSetTrackLengths(c *gin.Context) {
	view, err := h.discIDs.PrepareSetTrackLengths(c.Request.Context(), c.Param("discid"), c.Query("medium"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSetTrackLengthsResponse(view))
}

func (h *httpHandler) handleSetTrackLengths(c *gin.Context) {
	editor, ok := editorFromContext(c)
	if !ok {
		h.redirectToLogin(c)
		return
	}
	outcome, err := h.discIDs.SetTrackLengths(c.Request.Context(), editor, c.Param("discid"), formValue(c, "medium"), formValue(c, "edit_note"))
	h.respondOutcome(c, outcome, err)
}

func (h *httpHandler) handleReleaseDiscIDs(c *gin.Context) {
	releaseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || releaseID <= 0 {
		h.respondValidation(c, &discid.ValidationError{Kind: discid.KindInvalidParameter, Field: "id", Value: c.Param("id")})
		return
	}
	release, err := h.releases.GetRelease(c.Request.Context(), releaseID)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "release_not_found"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	discIDs, err := h.releases.ListReleaseDiscIDs(c.Request.Context(), releaseID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newReleaseDiscIDsResponse(release, discIDs))
}

func (h *httpHandler) handleGetEdit(c *gin.Context) {
	editID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || editID <= 0 {
		h.respondValidation(c, &discid.ValidationError{Kind: discid.KindInvalidParameter, Field: "id", Value: c.Param("id")})
		return
	}
	edit, notes, err := h.edits.Get(c.Request.Context(), editID)
	if errors.Is(err, edits.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "edit_not_found"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEditResponse(edit, notes))
}

// respondOutcome redirects to the release's disc id listing once an edit is queued.
func (h *httpHandler) respondOutcome(c *gin.Context, outcome discid.Outcome, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	if outcome.Failure != nil {
		h.respondValidation(c, outcome.Failure)
		return
	}
	h.logger.Info("edit queued",
		zap.String("request_id", c.GetString(requestIDContextKey)),
		zap.Int64("edit_id", outcome.EditID),
		zap.Int64("release_id", outcome.Release.ID))
	c.Header("X-Edit-ID", strconv.FormatInt(outcome.EditID, 10))
	c.Redirect(http.StatusSeeOther, fmt.Sprintf("/release/%d/discids", outcome.Release.ID))
}

func (h *httpHandler) respondValidation(c *gin.Context, failure *discid.ValidationError) {
	tag := discid.MatchLanguage(c.GetHeader("Accept-Language"))
	body := gin.H{
		"error":   string(failure.Kind),
		"message": failure.Localize(tag),
	}
	if failure.Field != "" {
		body["field"] = failure.Field
	}
	c.JSON(http.StatusBadRequest, body)
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	var failure *discid.ValidationError
	if errors.As(err, &failure) {
		h.respondValidation(c, failure)
		return
	}
	h.logger.Error("request failed",
		zap.String("request_id", c.GetString(requestIDContextKey)),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	body := gin.H{"error": "internal_error"}
	var coded codedError
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	c.JSON(http.StatusInternalServerError, body)
}

func (h *httpHandler) redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, loginRedirect(h.loginPath, c.Request.URL.RequestURI()))
}

func (h *httpHandler) page(c *gin.Context) catalog.Page {
	number, err := strconv.Atoi(strings.TrimSpace(c.Query("page")))
	if err != nil || number < 1 {
		number = 1
	}
	return catalog.Page{Number: number, Size: h.pageSize}
}

// formValue reads a posted field, falling back to the query string.
func formValue(c *gin.Context, key string) string {
	if value, ok := c.GetPostForm(key); ok {
		return value
	}
	return c.Query(key)
}
