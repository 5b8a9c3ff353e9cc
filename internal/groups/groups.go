package groups

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/dispatch"
	typWhatsApp "github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/types"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/router"
)

// DefaultSavePath is used when WHATSAPP_GROUPS_FILE is unset.
const DefaultSavePath = "whatsapp-groups.json"

var errInvalidName = errors.New("path must be a plain .json file name")

type Directory interface {
	Groups(ctx context.Context, refresh bool) ([]dispatch.Chat, error)
}

type Controller struct {
	ctx       context.Context
	directory Directory
	file      string
}

// New writes saved groups to file. Callers may pick another file name, but
// it always lands in the same directory as file.
func New(ctx context.Context, directory Directory, file string) *Controller {
	if strings.TrimSpace(file) == "" {
		file = DefaultSavePath
	}
	return &Controller{ctx: ctx, directory: directory, file: file}
}

type savedGroups struct {
	LastUpdate time.Time       `json:"lastUpdate"`
	Count      int             `json:"count"`
	Groups     []dispatch.Chat `json:"groups"`
}

// List
// @Summary     List Joined Groups
// @Description Groups this account belongs to, sorted by name. Cached for ten minutes unless refresh=true
// @Tags        Directory
// @Produce     json
// @Param       refresh query bool false "Bypass the cache"
// @Success     200
// @Failure     503
// @Router      /list-groups [get]
func (ctl *Controller) List(c *fiber.Ctx) error {
	start := time.Now()
	refresh := c.QueryBool("refresh", false)

	groups, err := ctl.load(refresh)
	if err != nil {
		return respondError(c, err)
	}

	log.Print(c).WithField("group_count", len(groups)).WithField("duration_ms", time.Since(start).Milliseconds()).Info("Groups listed")
	return router.ResponseSuccessWithData(c, fmt.Sprintf("Success get %d groups", len(groups)), fiber.Map{
		"count":  len(groups),
		"groups": groups,
	})
}

// Save
// @Summary     Save Joined Groups To A File
// @Description Writes {lastUpdate, count, groups} as JSON to the configured groups file. path may name another .json file in the same directory
// @Failure     400
// @Tags        Directory
// @Accept      json
// @Produce     json
// @Param       body body typWhatsApp.RequestSaveGroups false "Target file"
// @Success     200
// @Failure     503
// @Router      /save-groups [post]
func (ctl *Controller) Save(c *fiber.Ctx) error {
	var req typWhatsApp.RequestSaveGroups
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return router.ResponseBadRequest(c, "Failed parse body request")
		}
	}
	if req.Path == "" {
		req.Path = c.Query("path")
	}
	path, err := ctl.target(req.Path)
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	groups, err := ctl.load(true)
	if err != nil {
		return respondError(c, err)
	}

	if err := writeGroups(path, savedGroups{LastUpdate: time.Now().UTC(), Count: len(groups), Groups: groups}); err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	log.Print(c).WithField("file", path).WithField("group_count", len(groups)).Info("Groups saved")
	return router.ResponseSuccessWithData(c, fmt.Sprintf("Saved %d groups", len(groups)), fiber.Map{
		"count":  len(groups),
		"file":   path,
		"groups": groups,
	})
}

// target maps a caller supplied name onto the groups directory.
func (ctl *Controller) target(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ctl.file, nil
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
		return "", errInvalidName
	}
	return filepath.Join(filepath.Dir(ctl.file), name), nil
}

func (ctl *Controller) load(refresh bool) ([]dispatch.Chat, error) {
	groups, err := ctl.directory.Groups(ctl.ctx, refresh)
	if err != nil {
		return nil, err
	}
	out := make([]dispatch.Chat, len(groups))
	copy(out, groups)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// writeGroups replaces path atomically so readers never see a partial file.
func writeGroups(path string, doc savedGroups) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".groups-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write groups: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func respondError(c *fiber.Ctx, err error) error {
	status := dispatch.HTTPStatus(err)
	if status == fiber.StatusServiceUnavailable {
		return router.ResponseServiceUnavailable(c, "WhatsApp client is not ready, wait for authentication")
	}
	return router.ResponseError(c, status, err.Error())
}
