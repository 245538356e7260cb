package server

import (
	"encoding/json"
	"time"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/cdtoc"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/discid"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
)

type trackDetailPayload struct {
	Number      int   `json:"number"`
	StartSector int   `json:"start_sector"`
	EndSector   int   `json:"end_sector"`
	LengthMs    int64 `json:"length_ms"`
}

type tocPayload struct {
	DiscID     string               `json:"discid"`
	FreeDBID   string               `json:"freedb_id"`
	TOC        string               `json:"toc"`
	TrackCount int                  `json:"track_count"`
	LengthMs   int64                `json:"length_ms"`
	Tracks     []trackDetailPayload `json:"tracks"`
}

type cdtocPayload struct {
	ID int64 `json:"id"`
	tocPayload
}

type releasePayload struct {
	ID      int64  `json:"id"`
	GID     string `json:"gid"`
	Name    string `json:"name"`
	Barcode string `json:"barcode,omitempty"`
	Comment string `json:"comment,omitempty"`
}

type mediumPayload struct {
	ID         int64  `json:"id"`
	ReleaseID  int64  `json:"release_id"`
	Position   int    `json:"position"`
	Name       string `json:"name,omitempty"`
	TrackCount int    `json:"track_count"`
}

type artistPayload struct {
	ID       int64  `json:"id"`
	GID      string `json:"gid"`
	Name     string `json:"name"`
	SortName string `json:"sort_name"`
	Comment  string `json:"comment,omitempty"`
}

type attachmentPayload struct {
	MediumCDTOCID int64          `json:"medium_cdtoc_id"`
	Medium        mediumPayload  `json:"medium"`
	Release       releasePayload `json:"release"`
}

type candidatePayload struct {
	Release      releasePayload  `json:"release"`
	ArtistCredit string          `json:"artist_credit"`
	Mediums      []mediumPayload `json:"mediums"`
}

type releasePagePayload struct {
	Items    []candidatePayload `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

type artistPagePayload struct {
	Items    []artistPayload `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type cdstubPayload struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Artist     string   `json:"artist"`
	Barcode    string   `json:"barcode,omitempty"`
	DiscID     string   `json:"discid"`
	TrackCount int      `json:"track_count"`
	Tracks     []string `json:"tracks"`
}

type lookupResponse struct {
	CDTOC       cdtocPayload        `json:"cdtoc"`
	Attachments []attachmentPayload `json:"attachments"`
}

type attachResponse struct {
	State       discid.AttachState  `json:"state"`
	TOC         tocPayload          `json:"toc"`
	Attachments []attachmentPayload `json:"attachments"`
	Medium      *mediumPayload      `json:"medium,omitempty"`
	Release     *releasePayload     `json:"release,omitempty"`
	Artist      *artistPayload      `json:"artist,omitempty"`
	Releases    *releasePagePayload `json:"releases,omitempty"`
	Artists     *artistPagePayload  `json:"artists,omitempty"`
	CDStub      *cdstubPayload      `json:"cdstub,omitempty"`
}

type moveResponse struct {
	MediumCDTOCID int64               `json:"medium_cdtoc_id"`
	CDTOC         cdtocPayload        `json:"cdtoc"`
	Medium        mediumPayload       `json:"medium"`
	Release       releasePayload      `json:"release"`
	TargetMedium  *mediumPayload      `json:"target_medium,omitempty"`
	TargetRelease *releasePayload     `json:"target_release,omitempty"`
	Candidates    *releasePagePayload `json:"candidates,omitempty"`
}

type removeResponse struct {
	MediumCDTOCID int64          `json:"medium_cdtoc_id"`
	CDTOC         cdtocPayload   `json:"cdtoc"`
	Medium        mediumPayload  `json:"medium"`
	Release       releasePayload `json:"release"`
}

type trackLengthPayload struct {
	TrackID     int64  `json:"track_id"`
	Position    int    `json:"position"`
	Name        string `json:"name"`
	OldLengthMs *int64 `json:"old_length_ms"`
	NewLengthMs int64  `json:"new_length_ms"`
}

type setTrackLengthsResponse struct {
	CDTOC   cdtocPayload         `json:"cdtoc"`
	Medium  mediumPayload        `json:"medium"`
	Release releasePayload       `json:"release"`
	Changes []trackLengthPayload `json:"changes"`
}

type releaseDiscIDPayload struct {
	MediumCDTOCID int64         `json:"medium_cdtoc_id"`
	Medium        mediumPayload `json:"medium"`
	DiscID        string        `json:"discid"`
	TrackCount    int           `json:"track_count"`
}

type releaseDiscIDsResponse struct {
	Release releasePayload         `json:"release"`
	DiscIDs []releaseDiscIDPayload `json:"discids"`
}

type editNotePayload struct {
	EditorID int64     `json:"editor_id"`
	Text     string    `json:"text"`
	PostTime time.Time `json:"post_time"`
}

type editResponse struct {
	ID         int64             `json:"id"`
	Type       int               `json:"type"`
	TypeName   string            `json:"type_name"`
	EditorID   int64             `json:"editor_id"`
	Status     int               `json:"status"`
	Data       json.RawMessage   `json:"data"`
	OpenTime   time.Time         `json:"open_time"`
	ExpireTime time.Time         `json:"expire_time"`
	Notes      []editNotePayload `json:"notes"`
}

func newTOCPayload(toc cdtoc.CDTOC) tocPayload {
	details := toc.TrackDetails()
	tracks := make([]trackDetailPayload, 0, len(details))
	for _, detail := range details {
		tracks = append(tracks, trackDetailPayload{
			Number:      detail.Number,
			StartSector: detail.StartSector,
			EndSector:   detail.EndSector,
			LengthMs:    detail.LengthMs,
		})
	}
	return tocPayload{
		DiscID:     toc.DiscID(),
		FreeDBID:   toc.FreeDBID(),
		TOC:        toc.String(),
		TrackCount: toc.TrackCount(),
		LengthMs:   toc.LengthMs(),
		Tracks:     tracks,
	}
}

func newCDTOCPayload(record catalog.CDTOCRecord, toc cdtoc.CDTOC) cdtocPayload {
	return cdtocPayload{ID: record.ID, tocPayload: newTOCPayload(toc)}
}

func newReleasePayload(release catalog.Release) releasePayload {
	return releasePayload{
		ID:      release.ID,
		GID:     release.GID,
		Name:    release.Name,
		Barcode: release.Barcode,
		Comment: release.Comment,
	}
}

func newMediumPayload(medium catalog.Medium) mediumPayload {
	return mediumPayload{
		ID:         medium.ID,
		ReleaseID:  medium.ReleaseID,
		Position:   medium.Position,
		Name:       medium.Name,
		TrackCount: medium.TrackCount,
	}
}

func newArtistPayload(artist catalog.Artist) artistPayload {
	return artistPayload{
		ID:       artist.ID,
		GID:      artist.GID,
		Name:     artist.Name,
		SortName: artist.SortName,
		Comment:  artist.Comment,
	}
}

func newAttachmentPayloads(attachments []catalog.Attachment) []attachmentPayload {
	payloads := make([]attachmentPayload, 0, len(attachments))
	for _, attachment := range attachments {
		payloads = append(payloads, attachmentPayload{
			MediumCDTOCID: attachment.Link.ID,
			Medium:        newMediumPayload(attachment.Medium),
			Release:       newReleasePayload(attachment.Release),
		})
	}
	return payloads
}

func newReleasePagePayload(page *catalog.ReleasePage) *releasePagePayload {
	if page == nil {
		return nil
	}
	items := make([]candidatePayload, 0, len(page.Items))
	for _, candidate := range page.Items {
		mediums := make([]mediumPayload, 0, len(candidate.Mediums))
		for _, medium := range candidate.Mediums {
			mediums = append(mediums, newMediumPayload(medium))
		}
		items = append(items, candidatePayload{
			Release:      newReleasePayload(candidate.Release),
			ArtistCredit: candidate.ArtistCredit,
			Mediums:      mediums,
		})
	}
	return &releasePagePayload{Items: items, Total: page.Total, Page: page.Page, PageSize: page.PageSize}
}

func newArtistPagePayload(page *catalog.ArtistPage) *artistPagePayload {
	if page == nil {
		return nil
	}
	items := make([]artistPayload, 0, len(page.Items))
	for _, artist := range page.Items {
		items = append(items, newArtistPayload(artist))
	}
	return &artistPagePayload{Items: items, Total: page.Total, Page: page.Page, PageSize: page.PageSize}
}

func newCDStubPayload(stub *catalog.CDStub) *cdstubPayload {
	if stub == nil {
		return nil
	}
	titles := make([]string, 0, len(stub.Tracks))
	for _, track := range stub.Tracks {
		titles = append(titles, track.Title)
	}
	return &cdstubPayload{
		ID:         stub.Release.ID,
		Title:      stub.Release.Title,
		Artist:     stub.Release.Artist,
		Barcode:    stub.Release.Barcode,
		DiscID:     stub.TOC.DiscID,
		TrackCount: stub.TOC.TrackCount,
		Tracks:     titles,
	}
}

func newAttachResponse(view discid.AttachView) attachResponse {
	response := attachResponse{
		State:       view.State,
		TOC:         newTOCPayload(view.TOC),
		Attachments: newAttachmentPayloads(view.Attachments),
		Releases:    newReleasePagePayload(view.Releases),
		Artists:     newArtistPagePayload(view.Artists),
		CDStub:      newCDStubPayload(view.CDStub),
	}
	if view.Medium != nil {
		medium := newMediumPayload(*view.Medium)
		response.Medium = &medium
	}
	if view.Release != nil {
		release := newReleasePayload(*view.Release)
		response.Release = &release
	}
	if view.Artist != nil {
		artist := newArtistPayload(*view.Artist)
		response.Artist = &artist
	}
	return response
}

func newMoveResponse(view discid.MoveView) moveResponse {
	response := moveResponse{
		MediumCDTOCID: view.Link.ID,
		CDTOC:         newCDTOCPayload(view.CDTOC, view.TOC),
		Medium:        newMediumPayload(view.Medium),
		Release:       newReleasePayload(view.Release),
		Candidates:    newReleasePagePayload(view.Candidates),
	}
	if view.TargetMedium != nil {
		target := newMediumPayload(*view.TargetMedium)
		response.TargetMedium = &target
	}
	if view.TargetRelease != nil {
		target := newReleasePayload(*view.TargetRelease)
		response.TargetRelease = &target
	}
	return response
}

func newRemoveResponse(view discid.RemoveView) (removeResponse, error) {
	toc, err := view.CDTOC.TOC()
	if err != nil {
		return removeResponse{}, err
	}
	return removeResponse{
		MediumCDTOCID: view.Link.ID,
		CDTOC:         newCDTOCPayload(view.CDTOC, toc),
		Medium:        newMediumPayload(view.Medium),
		Release:       newReleasePayload(view.Release),
	}, nil
}

func newSetTrackLengthsResponse(view discid.SetTrackLengthsView) setTrackLengthsResponse {
	changes := make([]trackLengthPayload, 0, len(view.Changes))
	for _, change := range view.Changes {
		changes = append(changes, trackLengthPayload{
			TrackID:     change.Track.ID,
			Position:    change.Track.Position,
			Name:        change.Track.Name,
			OldLengthMs: change.OldLengthMs,
			NewLengthMs: change.NewLengthMs,
		})
	}
	return setTrackLengthsResponse{
		CDTOC:   newCDTOCPayload(view.CDTOC, view.TOC),
		Medium:  newMediumPayload(view.Medium),
		Release: newReleasePayload(view.Release),
		Changes: changes,
	}
}

func newReleaseDiscIDsResponse(release catalog.Release, discIDs []catalog.ReleaseDiscID) releaseDiscIDsResponse {
	items := make([]releaseDiscIDPayload, 0, len(discIDs))
	for _, entry := range discIDs {
		items = append(items, releaseDiscIDPayload{
			MediumCDTOCID: entry.Link.ID,
			Medium:        newMediumPayload(entry.Medium),
			DiscID:        entry.CDTOC.DiscID,
			TrackCount:    entry.CDTOC.TrackCount,
		})
	}
	return releaseDiscIDsResponse{Release: newReleasePayload(release), DiscIDs: items}
}

func newEditResponse(edit edits.Edit, notes []edits.EditNote) editResponse {
	notePayloads := make([]editNotePayload, 0, len(notes))
	for _, note := range notes {
		notePayloads = append(notePayloads, editNotePayload{
			EditorID: note.EditorID,
			Text:     note.Text,
			PostTime: note.PostTime.UTC(),
		})
	}
	return editResponse{
		ID:         edit.ID,
		Type:       int(edit.Type),
		TypeName:   edit.Type.String(),
		EditorID:   edit.EditorID,
		Status:     int(edit.Status),
		Data:       json.RawMessage(edit.DataJSON),
		OpenTime:   edit.OpenTime.UTC(),
		ExpireTime: edit.ExpireTime.UTC(),
		Notes:      notePayloads,
	}
}
