package pipeline

// StageName is a strongly-typed identifier for a pipeline stage. All canonical
// stages are declared as constants here for compile-time safety.
type StageName string

// Canonical stage names, in execution order.
const (
	StagePrepare        StageName = "prepare"
	StageCheckoutSource StageName = "checkout_source"
	StageGenerateDocs   StageName = "generate_docs"
	StageCheckoutSite   StageName = "checkout_site"
	StageCompose        StageName = "compose"
	StageBuildSite      StageName = "build_site"
	StageVerify         StageName = "verify"
	StagePackage        StageName = "package"
	StagePublish        StageName = "publish"
	StagePostProcess    StageName = "post_process"
)

// StageDef pairs a stage name with its executing function (internal wiring helper).
type StageDef struct {
	Name StageName
	Fn   Stage
}
