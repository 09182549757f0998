package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/andywolf/nxtrunk/internal/config"
	"github.com/andywolf/nxtrunk/internal/secrets"
	"github.com/andywolf/nxtrunk/internal/targets"
	"github.com/andywolf/nxtrunk/internal/trunk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload impacted targets to Trunk",
	Long: `Upload the impacted targets written by 'nxtrunk detect' to the Trunk
merge queue API.

Pull request metadata falls back to the usual CI environment variables:
  --trunk-token     TRUNK_TOKEN
  --repository      GITHUB_REPOSITORY
  --pr-number       PR_NUMBER, GITHUB_EVENT_NUMBER
  --pr-sha          PR_SHA, GITHUB_SHA
  --target-branch   TARGET_BRANCH, GITHUB_BASE_REF

When no token is given, --trunk-token-secret names a GCP Secret Manager
secret to read it from. Short secret names are qualified with
--secret-project, GOOGLE_CLOUD_PROJECT, or the GCE metadata server.

Examples:
  nxtrunk upload --targets-file impacted_targets.json
  nxtrunk upload --targets-file t.json --repository acme/web --pr-number 42 \
    --pr-sha abc123 --target-branch main`,
	Args: cobra.NoArgs,
	RunE: uploadTargets,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().String("targets-file", "", "JSON file with the list of impacted targets")
	uploadCmd.Flags().String("trunk-token", "", "Trunk API token (or TRUNK_TOKEN env var)")
	uploadCmd.Flags().String("trunk-token-secret", "", "GCP Secret Manager secret holding the Trunk token")
	uploadCmd.Flags().String("secret-project", "", "GCP project for short --trunk-token-secret names")
	uploadCmd.Flags().String("api-url", trunk.DefaultAPIURL, "Trunk setImpactedTargets endpoint")
	uploadCmd.Flags().String("repository", "", "Repository in owner/name format (or GITHUB_REPOSITORY env var)")
	uploadCmd.Flags().String("pr-number", "", "Pull request number (or PR_NUMBER / GITHUB_EVENT_NUMBER env var)")
	uploadCmd.Flags().String("pr-sha", "", "Pull request head SHA (or PR_SHA / GITHUB_SHA env var)")
	uploadCmd.Flags().String("target-branch", "", "Branch the PR merges into (or TARGET_BRANCH / GITHUB_BASE_REF env var)")
	uploadCmd.Flags().String("repo-host", config.DefaultRepoHost, "Repository host reported to Trunk")

	_ = viper.BindPFlag("upload.targets_file", uploadCmd.Flags().Lookup("targets-file"))
	_ = viper.BindPFlag("upload.trunk_token", uploadCmd.Flags().Lookup("trunk-token"))
	_ = viper.BindPFlag("upload.token_secret", uploadCmd.Flags().Lookup("trunk-token-secret"))
	_ = viper.BindPFlag("upload.secret_project", uploadCmd.Flags().Lookup("secret-project"))
	_ = viper.BindPFlag("upload.api_url", uploadCmd.Flags().Lookup("api-url"))
	_ = viper.BindPFlag("upload.repository", uploadCmd.Flags().Lookup("repository"))
	_ = viper.BindPFlag("upload.pr_number", uploadCmd.Flags().Lookup("pr-number"))
	_ = viper.BindPFlag("upload.pr_sha", uploadCmd.Flags().Lookup("pr-sha"))
	_ = viper.BindPFlag("upload.target_branch", uploadCmd.Flags().Lookup("target-branch"))
	_ = viper.BindPFlag("upload.repo_host", uploadCmd.Flags().Lookup("repo-host"))
}

func uploadTargets(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	u := &uploader{
		cfg:        cfg,
		stdout:     cmd.OutOrStdout(),
		stderr:     cmd.ErrOrStderr(),
		logger:     logger,
		newFetcher: func(ctx context.Context) (secrets.Fetcher, error) {
			return secrets.New(ctx, secrets.WithProject(cfg.Upload.SecretProject))
		},
	}
	return u.run(cmd.Context())
}

// uploader runs the upload step with explicit inputs and outputs.
type uploader struct {
	cfg        *config.Config
	stdout     io.Writer
	stderr     io.Writer
	logger     *zap.Logger
	httpClient *http.Client
	newFetcher func(context.Context) (secrets.Fetcher, error)
}

func (u *uploader) run(ctx context.Context) error {
	if err := u.cfg.ValidateUpload(); err != nil {
		return err
	}

	up := u.cfg.Upload
	token, err := secrets.ResolveToken(ctx, up.TrunkToken, up.TokenSecret, u.newFetcher)
	if err != nil {
		return err
	}
	up.TrunkToken = token
	if err := up.RequireToken(); err != nil {
		return err
	}

	impacted, err := targets.Read(up.TargetsFile)
	if err != nil {
		return err
	}

	target, err := up.ResolveTarget()
	if err != nil {
		return err
	}

	u.logger.Debug("resolved upload target",
		zap.String("repository", target.Owner+"/"+target.Name),
		zap.Int("pr", target.PRNumber),
		zap.String("sha", target.PRSHA),
		zap.String("target_branch", target.TargetBranch),
		zap.Int("targets", len(impacted)))

	opts := []trunk.ClientOption{
		trunk.WithAPIURL(up.APIURL),
		trunk.WithLogger(u.logger),
	}
	if u.httpClient != nil {
		opts = append(opts, trunk.WithHTTPClient(u.httpClient))
	}
	client := trunk.NewClient(token, opts...)

	err = client.Upload(ctx, &trunk.UploadRequest{
		Repo: trunk.Repo{
			Host:  target.Host,
			Owner: target.Owner,
			Name:  target.Name,
		},
		PR: trunk.PR{
			Number: target.PRNumber,
			SHA:    target.PRSHA,
		},
		TargetBranch:    target.TargetBranch,
		ImpactedTargets: impacted,
	})

	var apiErr *trunk.APIError
	if errors.As(err, &apiErr) {
		printFailure(u.stderr, "❌ %s", apiErr.Error())
		fmt.Fprintf(u.stderr, "Response: %s\n", apiErr.Detail())
		return ErrAlreadyReported
	}
	if err != nil {
		return err
	}

	printSuccess(u.stdout, "✨ Uploaded %d impacted targets for PR #%d @ %s",
		len(impacted), target.PRNumber, target.PRSHA)
	return nil
}
