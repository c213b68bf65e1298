package certificate

import (
	"context"
	"fmt"
	"time"

	courseModels "learnhub/models/course"

	"github.com/go-resty/resty/v2"
)

// Renderer calls the external certificate rendering service to produce a
// downloadable artifact. Rendering is best effort; issuance never waits
// on it beyond the request timeout.
type Renderer struct {
	client  *resty.Client
	baseURL string
}

func NewRenderer(baseURL string) *Renderer {
	return &Renderer{
		client:  resty.New().SetTimeout(10 * time.Second),
		baseURL: baseURL,
	}
}

type renderRequest struct {
	CertificateNumber string `json:"certificate_number"`
	StudentName       string `json:"student_name"`
	CourseTitle       string `json:"course_title"`
	GradeLetter       string `json:"grade_letter"`
	FinalScore        int    `json:"final_score"`
	CompletionDate    string `json:"completion_date"`
	VerificationURL   string `json:"verification_url"`
}

type renderResponse struct {
	URL     string `json:"url"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Render submits the certificate to the renderer and returns the URL of
// the rendered artifact.
func (r *Renderer) Render(ctx context.Context, cert *courseModels.Certificate) (string, error) {
	completionDate := ""
	if cert.CompletionDate != nil {
		completionDate = cert.CompletionDate.Format("2006-01-02")
	}

	var result renderResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(renderRequest{
			CertificateNumber: cert.CertificateNumber,
			StudentName:       cert.StudentName,
			CourseTitle:       cert.CourseTitle,
			GradeLetter:       cert.GradeLetter,
			FinalScore:        cert.FinalScore,
			CompletionDate:    completionDate,
			VerificationURL:   cert.VerificationURL,
		}).
		SetResult(&result).
		Post(r.baseURL + "/render")
	if err != nil {
		return "", fmt.Errorf("renderer request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("renderer returned %d: %s", resp.StatusCode(), result.Message)
	}
	return result.URL, nil
}
