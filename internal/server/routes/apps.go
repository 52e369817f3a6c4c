package routes

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/assetcache/internal/assets"
	"github.com/any-hub/assetcache/internal/controller"
	"github.com/any-hub/assetcache/internal/preset"
	"github.com/any-hub/assetcache/internal/server"
)

const storageQueryTimeout = 5 * time.Second

// ControllerSource 按 App 名称提供控制器，*proxy.Handler 即满足该接口。
type ControllerSource interface {
	Controller(name string) (*controller.Controller, bool)
}

// RegisterAppRoutes 在 /-/ 下暴露诊断接口：App 列表、单个 App 详情、手动激活与 preset 列表。
func RegisterAppRoutes(r fiber.Router, registry *server.AppRegistry, source ControllerSource) {
	if r == nil || registry == nil || source == nil {
		return
	}

	r.Get("/apps", func(c fiber.Ctx) error {
		routes := registry.List()
		payload := make([]appPayload, 0, len(routes))
		for _, route := range routes {
			ctrl, _ := source.Controller(route.Config.Name)
			payload = append(payload, encodeApp(route, ctrl))
		}
		return c.JSON(fiber.Map{"apps": payload})
	})

	r.Get("/apps/:name", func(c fiber.Ctx) error {
		route, ctrl, ok := resolve(c, registry, source)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "app_not_found"})
		}
		payload := encodeApp(route, ctrl)

		ctx, cancel := context.WithTimeout(c.Context(), storageQueryTimeout)
		defer cancel()
		generations, err := ctrl.Generations(ctx)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_unavailable"})
		}
		if generations == nil {
			generations = []string{}
		}
		payload.Generations = generations
		return c.JSON(payload)
	})

	r.Post("/apps/:name/activate", func(c fiber.Ctx) error {
		_, ctrl, ok := resolve(c, registry, source)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "app_not_found"})
		}
		report, err := ctrl.Activate(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "activation_failed"})
		}
		return c.JSON(report)
	})

	r.Get("/presets", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"presets": encodePresets(preset.List())})
	})
}

type appPayload struct {
	Name        string         `json:"name"`
	Origin      string         `json:"origin"`
	Upstream    string         `json:"upstream"`
	Preset      string         `json:"preset"`
	Generation  string         `json:"generation"`
	Active      bool           `json:"active"`
	Rules       assets.Summary `json:"rules"`
	Generations []string       `json:"generations,omitempty"`
}

type presetPayload struct {
	Key               string   `json:"key"`
	Description       string   `json:"description"`
	MutablePaths      []string `json:"mutable_paths"`
	ImmutablePatterns []string `json:"immutable_patterns"`
	Variants          []string `json:"variants"`
	RequiresCrate     bool     `json:"requires_crate"`
}

func resolve(c fiber.Ctx, registry *server.AppRegistry, source ControllerSource) (*server.AppRoute, *controller.Controller, bool) {
	name := strings.TrimSpace(c.Params("name"))
	route, ok := registry.Get(name)
	if !ok {
		return nil, nil, false
	}
	ctrl, ok := source.Controller(name)
	if !ok {
		return nil, nil, false
	}
	return route, ctrl, true
}

func encodeApp(route *server.AppRoute, ctrl *controller.Controller) appPayload {
	payload := appPayload{
		Name:       route.Config.Name,
		Origin:     route.Config.Origin,
		Upstream:   route.Config.Upstream,
		Preset:     route.Preset.Key,
		Generation: route.Config.Generation,
	}
	if route.Rules != nil {
		payload.Rules = route.Rules.Summary()
	}
	if ctrl != nil {
		payload.Active = ctrl.Active()
	}
	return payload
}

func encodePresets(items []preset.Preset) []presetPayload {
	result := make([]presetPayload, 0, len(items))
	for _, p := range items {
		result = append(result, presetPayload{
			Key:               p.Key,
			Description:       p.Description,
			MutablePaths:      nonNil(p.MutablePaths),
			ImmutablePatterns: nonNil(p.ImmutablePatterns),
			Variants:          nonNil(p.Variants),
			RequiresCrate:     p.RequiresCrate(),
		})
	}
	return result
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
