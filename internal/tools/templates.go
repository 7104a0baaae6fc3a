// ABOUTME: Image generation templates for product imagery
// ABOUTME: Fixed catalog served by get_image_templates and used by generate_product_image

package tools

// ImageTemplate describes one product-image composition preset.
type ImageTemplate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Composition string `json:"composition"`
}

var imageTemplates = []ImageTemplate{
	{
		Name:        "studio",
		Description: "Clean studio shot on neutral background",
		Composition: "centered product, soft shadows, white seamless backdrop",
	},
	{
		Name:        "lifestyle",
		Description: "Product shown in a realistic usage context",
		Composition: "product in use, natural lighting, environmental context",
	},
	{
		Name:        "technical",
		Description: "Exploded or annotated technical view",
		Composition: "orthographic angle, dimension callouts, schematic styling",
	},
	{
		Name:        "catalog",
		Description: "Compact tile suitable for listing grids",
		Composition: "square crop, high contrast, uniform margins",
	},
}

// ImageTemplates returns the available templates.
func ImageTemplates() []ImageTemplate {
	out := make([]ImageTemplate, len(imageTemplates))
	copy(out, imageTemplates)
	return out
}

// TemplateByName returns the named template, defaulting to "studio" for
// unknown or empty names.
func TemplateByName(name string) ImageTemplate {
	for _, t := range imageTemplates {
		if t.Name == name {
			return t
		}
	}
	return imageTemplates[0]
}
