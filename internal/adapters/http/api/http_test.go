package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"

	"github.com/okian/panelscore/internal/adapters/http/api"
	"github.com/okian/panelscore/internal/adapters/mq/queue"
	"github.com/okian/panelscore/internal/adapters/repository"
	service "github.com/okian/panelscore/internal/app"
	"github.com/okian/panelscore/internal/config"
	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/internal/export"
	"github.com/okian/panelscore/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newTestServer(deps api.Dependencies, opts ...api.Option) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func do(srv *httptest.Server, method, path string, body any) (int, []byte) {
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			buf, _ := json.Marshal(b)
			rd = bytes.NewReader(buf)
		}
	}
	req, _ := http.NewRequest(method, srv.URL+path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func decodeAs[T any](raw []byte) T {
	var v T
	_ = json.Unmarshal(raw, &v)
	return v
}

func TestAPI_Flow(t *testing.T) {
	Convey("Given the API over a running service", t, func() {
		svc := service.New(config.New())
		So(svc.Start(context.Background()), ShouldBeNil)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = svc.Stop(ctx)
		}()
		srv := newTestServer(svc, api.WithMaxPanelLimit(1))
		defer srv.Close()

		code, body := do(srv, http.MethodPost, "/subjects", map[string]any{
			"title":             "Backend",
			"recommendedSkills": []map[string]any{{"name": "go"}, {"name": "sql"}},
		})
		So(code, ShouldEqual, http.StatusCreated)
		sub := decodeAs[model.Subject](body)
		So(sub.ID, ShouldNotBeEmpty)

		code, body = do(srv, http.MethodPost, "/experts", map[string]any{
			"name": "Ada", "email": "ada@example.com", "skills": []map[string]any{{"name": "Go"}, {"name": "SQL"}},
		})
		So(code, ShouldEqual, http.StatusCreated)
		ada := decodeAs[model.Expert](body)

		_, body = do(srv, http.MethodPost, "/experts", map[string]any{"name": "Bob", "skills": []map[string]any{{"name": "java"}}})
		bob := decodeAs[model.Expert](body)

		code, body = do(srv, http.MethodPost, "/candidates", map[string]any{"name": "Cy", "skills": []map[string]any{{"name": "go"}}})
		So(code, ShouldEqual, http.StatusCreated)
		cy := decodeAs[model.Candidate](body)

		Convey("When experts join and a candidate applies", func() {
			code, body := do(srv, http.MethodPost, "/subjects/"+sub.ID+"/experts", map[string]string{"expertId": ada.ID})
			So(code, ShouldEqual, http.StatusAccepted)
			So(decodeAs[service.Submission](body).Kind, ShouldEqual, model.KindExpertAdded)
			code, _ = do(srv, http.MethodPost, "/subjects/"+sub.ID+"/experts", map[string]string{"expertId": bob.ID})
			So(code, ShouldEqual, http.StatusAccepted)
			code, _ = do(srv, http.MethodPost, "/subjects/"+sub.ID+"/candidates", map[string]string{"candidateId": cy.ID})
			So(code, ShouldEqual, http.StatusAccepted)

			Convey("Then scores become visible on the entities", func() {
				var got model.Candidate
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					_, body := do(srv, http.MethodGet, "/candidates/"+cy.ID, nil)
					if got = decodeAs[model.Candidate](body); got.AverageRelevancyScore == 50 {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(got.AverageRelevancyScore, ShouldEqual, 50)
			})

			Convey("Then the panel limit is capped at the configured maximum", func() {
				code, body := do(srv, http.MethodGet, "/subjects/"+sub.ID+"/experts?limit=10", nil)
				So(code, ShouldEqual, http.StatusOK)
				So(len(decodeAs[[]service.PanelEntry](body)), ShouldEqual, 1)
			})

			Convey("Then a second add of the same expert conflicts", func() {
				code, body := do(srv, http.MethodPost, "/subjects/"+sub.ID+"/experts", map[string]string{"expertId": ada.ID})
				So(code, ShouldEqual, http.StatusConflict)
				So(decodeAs[map[string]string](body)["code"], ShouldEqual, "conflict")
			})

			Convey("Then withdrawing and removing are accepted", func() {
				code, _ := do(srv, http.MethodDelete, "/subjects/"+sub.ID+"/candidates/"+cy.ID, nil)
				So(code, ShouldEqual, http.StatusAccepted)
				code, _ = do(srv, http.MethodDelete, "/subjects/"+sub.ID+"/experts/"+bob.ID, nil)
				So(code, ShouldEqual, http.StatusAccepted)
				code, _ = do(srv, http.MethodDelete, "/subjects/"+sub.ID+"/candidates/"+cy.ID, nil)
				So(code, ShouldEqual, http.StatusNotFound)
			})

			Convey("Then deleting the subject queues a recompute", func() {
				code, body := do(srv, http.MethodDelete, "/subjects/"+sub.ID, nil)
				So(code, ShouldEqual, http.StatusAccepted)
				So(decodeAs[service.Submission](body).Kind, ShouldEqual, model.KindSubjectDeleted)
				code, _ = do(srv, http.MethodGet, "/subjects/"+sub.ID, nil)
				So(code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When skills are replaced", func() {
			code, body := do(srv, http.MethodPut, "/experts/"+ada.ID+"/skills", map[string]any{"skills": []map[string]any{{"name": "rust"}}})
			So(code, ShouldEqual, http.StatusAccepted)
			So(decodeAs[service.Submission](body).Kind, ShouldEqual, model.KindExpertSkillsChanged)

			code, _ = do(srv, http.MethodPut, "/subjects/"+sub.ID+"/skills", map[string]any{"skills": []map[string]any{{"name": "rust", "weight": 2}}})
			So(code, ShouldEqual, http.StatusAccepted)

			code, _ = do(srv, http.MethodPut, "/experts/missing/skills", map[string]any{"skills": []map[string]any{}})
			So(code, ShouldEqual, http.StatusNotFound)

			code, _ = do(srv, http.MethodPut, "/candidates/"+cy.ID+"/skills", map[string]any{"skills": []map[string]any{{"name": ""}}})
			So(code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a candidate without applications is deleted", func() {
			code, body := do(srv, http.MethodDelete, "/candidates/"+cy.ID, nil)
			So(code, ShouldEqual, http.StatusOK)
			So(decodeAs[service.Submission](body).Queued, ShouldBeFalse)
			code, _ = do(srv, http.MethodGet, "/candidates/"+cy.ID, nil)
			So(code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When an expert is deleted", func() {
			code, _ := do(srv, http.MethodDelete, "/experts/"+bob.ID, nil)
			So(code, ShouldEqual, http.StatusNoContent)
			code, _ = do(srv, http.MethodGet, "/experts/"+bob.ID, nil)
			So(code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a recompute is requested directly", func() {
			code, body := do(srv, http.MethodPost, "/recompute", map[string]any{"kind": "recompute_expert_averages", "expertIds": []string{ada.ID}})
			So(code, ShouldEqual, http.StatusAccepted)
			So(decodeAs[service.Submission](body).JobID, ShouldNotBeEmpty)

			code, _ = do(srv, http.MethodPost, "/recompute", map[string]any{"kind": "nope"})
			So(code, ShouldEqual, http.StatusBadRequest)
			code, _ = do(srv, http.MethodPost, "/recompute", map[string]any{"kind": "expert_added"})
			So(code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the report is downloaded", func() {
			resp, err := srv.Client().Get(srv.URL + "/export")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldContainSubstring, "spreadsheetml")

			f, err := excelize.OpenReader(resp.Body)
			So(err, ShouldBeNil)
			defer f.Close()
			rows, _ := f.GetRows(export.SubjectsSheet)
			So(len(rows), ShouldEqual, 2)
			So(rows[1][0], ShouldEqual, sub.ID)
		})

		Convey("When stats and health are requested", func() {
			code, body := do(srv, http.MethodGet, "/stats", nil)
			So(code, ShouldEqual, http.StatusOK)
			stats := decodeAs[service.Stats](body)
			So(stats.Started, ShouldBeTrue)
			So(stats.Entities.Experts, ShouldEqual, 2)

			code, body = do(srv, http.MethodGet, "/healthz", nil)
			So(code, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, "panelscore_engine_worker_count")
		})
	})
}

func TestAPI_Validation(t *testing.T) {
	Convey("Given the API over a running service", t, func() {
		svc := service.New(config.New())
		So(svc.Start(context.Background()), ShouldBeNil)
		defer func() { _ = svc.Stop(context.Background()) }()
		srv := newTestServer(svc)
		defer srv.Close()

		cases := []struct {
			name   string
			method string
			path   string
			body   any
			want   int
		}{
			{"malformed json", http.MethodPost, "/subjects", "{", http.StatusBadRequest},
			{"unknown field", http.MethodPost, "/subjects", map[string]any{"title": "x", "bogus": 1}, http.StatusBadRequest},
			{"missing title", http.MethodPost, "/subjects", map[string]any{"department": "eng"}, http.StatusBadRequest},
			{"bad status", http.MethodPost, "/subjects", map[string]any{"title": "x", "status": "paused"}, http.StatusBadRequest},
			{"negative weight", http.MethodPost, "/subjects", map[string]any{"title": "x", "recommendedSkills": []map[string]any{{"name": "go", "weight": -1}}}, http.StatusBadRequest},
			{"bad email", http.MethodPost, "/experts", map[string]any{"name": "x", "email": "nope"}, http.StatusBadRequest},
			{"missing skills", http.MethodPut, "/experts/e1/skills", map[string]any{}, http.StatusBadRequest},
			{"unknown subject", http.MethodGet, "/subjects/missing", nil, http.StatusNotFound},
			{"unknown panel", http.MethodGet, "/subjects/missing/experts", nil, http.StatusNotFound},
			{"bad limit", http.MethodGet, "/subjects/missing/experts?limit=-1", nil, http.StatusBadRequest},
			{"wrong method", http.MethodPatch, "/subjects/x", nil, http.StatusMethodNotAllowed},
		}
		for _, tc := range cases {
			Convey(fmt.Sprintf("%s answers %d", tc.name, tc.want), func() {
				code, _ := do(srv, tc.method, tc.path, tc.body)
				So(code, ShouldEqual, tc.want)
			})
		}

		Convey("A duplicate id conflicts", func() {
			code, _ := do(srv, http.MethodPost, "/experts", map[string]any{"id": "e1", "name": "x"})
			So(code, ShouldEqual, http.StatusCreated)
			code, _ = do(srv, http.MethodPost, "/experts", map[string]any{"id": "e1", "name": "y"})
			So(code, ShouldEqual, http.StatusConflict)
		})

		Convey("A closed subject refuses applications", func() {
			_, body := do(srv, http.MethodPost, "/subjects", map[string]any{"title": "x", "status": "closed"})
			sub := decodeAs[model.Subject](body)
			_, body = do(srv, http.MethodPost, "/candidates", map[string]any{"name": "c"})
			c := decodeAs[model.Candidate](body)
			code, body := do(srv, http.MethodPost, "/subjects/"+sub.ID+"/candidates", map[string]string{"candidateId": c.ID})
			So(code, ShouldEqual, http.StatusConflict)
			So(decodeAs[map[string]string](body)["code"], ShouldEqual, "subject_closed")
		})
	})
}

// stubDeps answers every mutation with err. Unused methods panic through the nil interface.
type stubDeps struct {
	api.Dependencies
	err error
}

func (s stubDeps) Apply(context.Context, string, string) (service.Submission, error) {
	return service.Submission{Kind: model.KindApplicationCreated}, s.err
}

func (s stubDeps) Export(context.Context, io.Writer) error {
	return s.err
}

func (s stubDeps) GetStats(context.Context) (service.Stats, error) {
	return service.Stats{}, s.err
}

func TestAPI_ErrorMapping(t *testing.T) {
	Convey("Given handlers over failing dependencies", t, func() {
		cases := []struct {
			err  error
			want int
			code string
		}{
			{fmt.Errorf("%w: %w", service.ErrBackpressure, queue.ErrFull), http.StatusTooManyRequests, "backpressure"},
			{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
			{queue.ErrClosed, http.StatusServiceUnavailable, "unavailable"},
			{repository.ErrNotFound, http.StatusNotFound, "not_found"},
			{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
		}
		for _, tc := range cases {
			Convey(fmt.Sprintf("%v maps to %d", tc.err, tc.want), func() {
				srv := newTestServer(stubDeps{err: tc.err})
				defer srv.Close()

				code, body := do(srv, http.MethodPost, "/subjects/s1/candidates", map[string]string{"candidateId": "c1"})
				So(code, ShouldEqual, tc.want)
				So(decodeAs[map[string]string](body)["code"], ShouldEqual, tc.code)
			})
		}

		Convey("Internal errors do not leak their message", func() {
			srv := newTestServer(stubDeps{err: errors.New("secret dsn")})
			defer srv.Close()
			_, body := do(srv, http.MethodPost, "/subjects/s1/candidates", map[string]string{"candidateId": "c1"})
			So(string(body), ShouldNotContainSubstring, "secret")
		})

		Convey("Export failures answer JSON", func() {
			srv := newTestServer(stubDeps{err: service.ErrNotStarted})
			defer srv.Close()
			code, body := do(srv, http.MethodGet, "/export", nil)
			So(code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeAs[map[string]string](body)["code"], ShouldEqual, "unavailable")
		})

		Convey("Stats failures answer 503", func() {
			srv := newTestServer(stubDeps{err: service.ErrNotStarted})
			defer srv.Close()
			code, _ := do(srv, http.MethodGet, "/stats", nil)
			So(code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
