package sofa

// ComponentCategory is the closed taxonomy the Component Normalizer maps
// Apple's free-text "component" strings onto (spec.md §4.6).
type ComponentCategory string

const (
	ComponentWebKit            ComponentCategory = "WebKit"
	ComponentKernel            ComponentCategory = "Kernel"
	ComponentNetworking        ComponentCategory = "Networking"
	ComponentSecurity          ComponentCategory = "Security"
	ComponentMedia             ComponentCategory = "Media"
	ComponentGraphics          ComponentCategory = "Graphics"
	ComponentSystemServices    ComponentCategory = "System Services"
	ComponentFileSystem        ComponentCategory = "File System"
	ComponentDrivers           ComponentCategory = "Drivers"
	ComponentApplications      ComponentCategory = "Applications"
	ComponentAccessibility     ComponentCategory = "Accessibility"
	ComponentVirtualization    ComponentCategory = "Virtualization"
	ComponentPackageManagement ComponentCategory = "Package Management"
	ComponentDeveloperTools    ComponentCategory = "Developer Tools"
	ComponentPrivacy           ComponentCategory = "Privacy"

	// ComponentSystem is the default fallback category when no rule fires.
	ComponentSystem ComponentCategory = "System"
)

// Categories lists the fifteen declared categories in declaration order
// (excludes the System fallback).
func Categories() []ComponentCategory {
	return []ComponentCategory{
		ComponentWebKit,
		ComponentKernel,
		ComponentNetworking,
		ComponentSecurity,
		ComponentMedia,
		ComponentGraphics,
		ComponentSystemServices,
		ComponentFileSystem,
		ComponentDrivers,
		ComponentApplications,
		ComponentAccessibility,
		ComponentVirtualization,
		ComponentPackageManagement,
		ComponentDeveloperTools,
		ComponentPrivacy,
	}
}
