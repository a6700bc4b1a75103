package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/purgekit/internal/config"
	"github.com/kalambet/purgekit/internal/locale"
)

// Language is one catalog entry as served by /languages.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Keep bool   `json:"keep"`
}

type setOptionRequest struct {
	Value string `json:"value"`
}

type setListRequest struct {
	Items []string `json:"items"`
}

func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrUnknownKey):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, config.ErrKindMismatch):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func handleListOptions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var infos []config.KeyInfo
		deps.Prefs.Do(func(s *config.Store) error {
			infos = s.ShowAll()
			return nil
		})
		writeJSON(w, http.StatusOK, infos)
	}
}

func handleCheckOptions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var corrupt bool
		deps.Prefs.Do(func(s *config.Store) error {
			corrupt = s.IsCorrupt()
			return nil
		})
		writeJSON(w, http.StatusOK, map[string]bool{"corrupt": corrupt})
	}
}

func handleGetOption(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var info config.KeyInfo
		err := deps.Prefs.Do(func(s *config.Store) error {
			var err error
			info, err = s.Describe(chi.URLParam(r, "key"))
			return err
		})
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func handleSetOption(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setOptionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		key := chi.URLParam(r, "key")
		var info config.KeyInfo
		err := deps.Prefs.Do(func(s *config.Store) error {
			if _, err := s.Describe(key); err != nil {
				return err
			}
			if err := s.SetString(config.SectionMain, key, req.Value); err != nil {
				return err
			}
			var err error
			info, err = s.Describe(key)
			return err
		})
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func handleToggleOption(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		var info config.KeyInfo
		err := deps.Prefs.Do(func(s *config.Store) error {
			if err := s.Toggle(key); err != nil {
				return err
			}
			var err error
			info, err = s.Describe(key)
			return err
		})
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func handleListLanguages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var langs []Language
		deps.Prefs.Do(func(s *config.Store) error {
			langs = languages(s)
			return nil
		})
		writeJSON(w, http.StatusOK, langs)
	}
}

func languages(s *config.Store) []Language {
	catalog := locale.Catalog()
	out := make([]Language, 0, len(catalog))
	for _, code := range catalog {
		out = append(out, Language{Code: code, Name: locale.DisplayName(code), Keep: s.Language(code)})
	}
	return out
}

func handleSetLanguage(deps Deps, keep bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !locale.IsKnown(id) {
			httpError(w, http.StatusNotFound, "not_found", "unknown language %q", id)
			return
		}
		err := deps.Prefs.Do(func(s *config.Store) error {
			return s.SetLanguage(id, keep)
		})
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Language{Code: id, Name: locale.DisplayName(id), Keep: keep})
	}
}

func handleGetList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var (
			items []string
			ok    bool
		)
		deps.Prefs.Do(func(s *config.Store) error {
			items, ok = s.List(name)
			return nil
		})
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "list %q is not set", name)
			return
		}
		writeJSON(w, http.StatusOK, setListRequest{Items: items})
	}
}

func handleSetList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setListRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Items == nil {
			req.Items = []string{}
		}
		err := deps.Prefs.Do(func(s *config.Store) error {
			return s.SetList(chi.URLParam(r, "name"), req.Items)
		})
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

// pathAccessors maps the {kind} URL segment to the store's path set methods.
func pathAccessors(kind string) (get func(*config.Store) (config.PathSet, error), set func(*config.Store, config.PathSet) error, ok bool) {
	switch kind {
	case "whitelist":
		return (*config.Store).WhitelistPaths, (*config.Store).SetWhitelistPaths, true
	case "custom":
		return (*config.Store).CustomPaths, (*config.Store).SetCustomPaths, true
	default:
		return nil, nil, false
	}
}

func handleGetPaths(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := chi.URLParam(r, "kind")
		get, _, ok := pathAccessors(kind)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown path kind %q", kind)
			return
		}
		var paths config.PathSet
		err := deps.Prefs.Do(func(s *config.Store) error {
			var err error
			paths, err = get(s)
			return err
		})
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, paths)
	}
}

func handleSetPaths(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := chi.URLParam(r, "kind")
		_, set, ok := pathAccessors(kind)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown path kind %q", kind)
			return
		}
		var paths config.PathSet
		if !decodeBody(w, r, &paths) {
			return
		}
		err := deps.Prefs.Do(func(s *config.Store) error {
			return set(s, paths)
		})
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, paths)
	}
}
