package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/plugman/internal/uvcli"
)

const (
	localFileReferenceMarkerConstant    = " @ file://"
	dependencyNameReferenceSeparator    = " @ "
	pinnedReferenceTemplateConstant     = "%s @ git+https://github.com/%s/%s.git@%s"
	uvClientMissingMessageConstant      = "uv client not configured"
	noDependenciesMessageConstant       = "manifest declares no dependencies to package"
	productionInputFileNameConstant     = "requirements.prod.in"
	productionLockFileNameConstant      = "requirements.prod.txt"
	requirementsFilePermissionsConstant = 0o644

	unmatchedLocalDependencyWarningConstant = "no repository found for local dependency; omitting"
	packageNameUnreadableWarningConstant    = "could not read package name from plugin manifest"
	logFieldDependencyNameConstant          = "dependency"
	logFieldPluginDirectoryConstant         = "plugin_directory"
	rewritePipelineFailedTemplateConstant   = "production packaging failed: %w"
)

// DependencyKind classifies a declared dependency during rewriting.
type DependencyKind string

// Supported dependency kinds.
const (
	DependencyKindLocalPath       DependencyKind = DependencyKind("local_path")
	DependencyKindWorkspaceMember DependencyKind = DependencyKind("workspace_member")
	DependencyKindOrdinary        DependencyKind = DependencyKind("ordinary")
)

// DependencyEntry is the transient classification of one declared dependency.
type DependencyEntry struct {
	DeclaredName    string
	Kind            DependencyKind
	RemoteReference string
}

// ErrUVClientNotConfigured indicates the rewriter was constructed without a uv client.
var ErrUVClientNotConfigured = errors.New(uvClientMissingMessageConstant)

// Rewriter converts workspace-local dependencies into pinned remote references
// so production deployments never depend on editable local paths.
type Rewriter struct {
	projectRoot      string
	manifestPath     string
	pluginsDirectory string
	pluginsDirName   string
	organization     string
	uvClient         *uvcli.Client
	logger           *zap.Logger
}

// RewriterDependencies enumerates collaborators required by the rewriter.
type RewriterDependencies struct {
	ProjectRoot      string
	ManifestPath     string
	PluginsDirectory string
	PluginsDirName   string
	Organization     string
	UVClient         *uvcli.Client
	Logger           *zap.Logger
}

// NewRewriter constructs a Rewriter from the provided dependencies.
func NewRewriter(dependencies RewriterDependencies) (*Rewriter, error) {
	if dependencies.UVClient == nil {
		return nil, ErrUVClientNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rewriter{
		projectRoot:      dependencies.ProjectRoot,
		manifestPath:     dependencies.ManifestPath,
		pluginsDirectory: dependencies.PluginsDirectory,
		pluginsDirName:   dependencies.PluginsDirName,
		organization:     dependencies.Organization,
		uvClient:         dependencies.UVClient,
		logger:           logger,
	}, nil
}

// CreateProductionPackage rewrites the manifest's dependency list into pinned
// remote references and compiles a locked production manifest. The intermediate
// input file is deleted unconditionally when any stage fails; a half-written
// production manifest is strictly worse than none.
func (rewriter *Rewriter) CreateProductionPackage(executionContext context.Context, targetBranch string) error {
	productionInputPath := filepath.Join(rewriter.projectRoot, productionInputFileNameConstant)
	productionLockPath := filepath.Join(rewriter.projectRoot, productionLockFileNameConstant)

	pipelineError := rewriter.runPipeline(executionContext, targetBranch, productionInputPath, productionLockPath)
	if pipelineError != nil {
		_ = os.Remove(productionInputPath)
		return fmt.Errorf(rewritePipelineFailedTemplateConstant, pipelineError)
	}
	return nil
}

func (rewriter *Rewriter) runPipeline(executionContext context.Context, targetBranch string, productionInputPath string, productionLockPath string) error {
	rootManifest, loadError := LoadPyProject(rewriter.manifestPath)
	if loadError != nil {
		return loadError
	}

	packageRepositoryMap := rewriter.buildPackageRepositoryMap(rootManifest)
	productionEntries := rewriter.rewriteDependencies(rootManifest, packageRepositoryMap, targetBranch)
	if len(productionEntries) == 0 {
		return errors.New(noDependenciesMessageConstant)
	}

	inputContent := strings.Join(productionEntries, "\n") + "\n"
	if writeError := os.WriteFile(productionInputPath, []byte(inputContent), requirementsFilePermissionsConstant); writeError != nil {
		return writeError
	}

	return rewriter.uvClient.PipCompile(executionContext, productionInputPath, productionLockPath)
}

// buildPackageRepositoryMap scans plugin directories matched by a workspace
// member pattern and maps each normalized declared package name to its
// repository directory name.
func (rewriter *Rewriter) buildPackageRepositoryMap(rootManifest PyProject) map[string]string {
	packageRepositoryMap := map[string]string{}

	pluginsPatternMatched := false
	for _, memberPattern := range rootManifest.Tool.UV.Workspace.Members {
		if strings.HasPrefix(memberPattern, rewriter.pluginsDirName) {
			pluginsPatternMatched = true
			break
		}
	}
	if !pluginsPatternMatched {
		return packageRepositoryMap
	}

	directoryEntries, readError := os.ReadDir(rewriter.pluginsDirectory)
	if readError != nil {
		return packageRepositoryMap
	}

	for _, directoryEntry := range directoryEntries {
		if !directoryEntry.IsDir() {
			continue
		}
		pluginManifestPath := filepath.Join(rewriter.pluginsDirectory, directoryEntry.Name(), PyProjectFileName)
		pluginManifest, loadError := LoadPyProject(pluginManifestPath)
		if loadError != nil {
			rewriter.logger.Warn(
				packageNameUnreadableWarningConstant,
				zap.String(logFieldPluginDirectoryConstant, directoryEntry.Name()),
				zap.Error(loadError),
			)
			continue
		}
		packageName := pluginManifest.PackageName()
		if len(packageName) == 0 {
			continue
		}
		packageRepositoryMap[NormalizePackageName(packageName)] = directoryEntry.Name()
	}

	return packageRepositoryMap
}

// rewriteDependencies classifies every declared dependency, including optional
// groups, and returns the deduplicated, deterministically sorted production list.
func (rewriter *Rewriter) rewriteDependencies(rootManifest PyProject, packageRepositoryMap map[string]string, targetBranch string) []string {
	declaredDependencies := append([]string{}, rootManifest.Project.Dependencies...)
	for _, optionalGroup := range rootManifest.Project.OptionalDependencies {
		declaredDependencies = append(declaredDependencies, optionalGroup...)
	}

	productionSet := map[string]struct{}{}
	for _, declaredDependency := range declaredDependencies {
		dependencyEntry := rewriter.classifyDependency(declaredDependency, rootManifest.Tool.UV.Sources, packageRepositoryMap, targetBranch)
		if dependencyEntry == nil {
			continue
		}
		productionSet[dependencyEntry.RemoteReference] = struct{}{}
	}

	productionEntries := make([]string, 0, len(productionSet))
	for productionEntry := range productionSet {
		productionEntries = append(productionEntries, productionEntry)
	}
	sort.Strings(productionEntries)
	return productionEntries
}

func (rewriter *Rewriter) classifyDependency(declaredDependency string, dependencySources map[string]DependencySource, packageRepositoryMap map[string]string, targetBranch string) *DependencyEntry {
	trimmedDependency := strings.TrimSpace(declaredDependency)
	if len(trimmedDependency) == 0 {
		return nil
	}

	if strings.Contains(trimmedDependency, localFileReferenceMarkerConstant) {
		declaredName := strings.TrimSpace(strings.SplitN(trimmedDependency, dependencyNameReferenceSeparator, 2)[0])
		return rewriter.resolveLocalDependency(declaredName, DependencyKindLocalPath, packageRepositoryMap, targetBranch)
	}

	declaredName := extractDependencyName(trimmedDependency)
	if dependencySource, sourceDeclared := dependencySources[declaredName]; sourceDeclared && dependencySource.IsLocal() {
		return rewriter.resolveLocalDependency(declaredName, DependencyKindWorkspaceMember, packageRepositoryMap, targetBranch)
	}

	return &DependencyEntry{DeclaredName: declaredName, Kind: DependencyKindOrdinary, RemoteReference: trimmedDependency}
}

// resolveLocalDependency maps a local dependency onto its fork repository.
// Unmatched names are omitted with a warning; emitting a guessed reference
// would produce a broken production manifest.
func (rewriter *Rewriter) resolveLocalDependency(declaredName string, dependencyKind DependencyKind, packageRepositoryMap map[string]string, targetBranch string) *DependencyEntry {
	repositoryName, repositoryKnown := packageRepositoryMap[NormalizePackageName(declaredName)]
	if !repositoryKnown {
		rewriter.logger.Warn(
			unmatchedLocalDependencyWarningConstant,
			zap.String(logFieldDependencyNameConstant, declaredName),
		)
		return nil
	}

	pinnedReference := fmt.Sprintf(pinnedReferenceTemplateConstant, declaredName, rewriter.organization, repositoryName, targetBranch)
	return &DependencyEntry{DeclaredName: declaredName, Kind: dependencyKind, RemoteReference: pinnedReference}
}

// extractDependencyName strips version specifiers and extras from a PEP 508 style entry.
func extractDependencyName(dependencySpecifier string) string {
	nameEndIndex := strings.IndexAny(dependencySpecifier, " <>=!~[;@")
	if nameEndIndex == -1 {
		return dependencySpecifier
	}
	return dependencySpecifier[:nameEndIndex]
}
