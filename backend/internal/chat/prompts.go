package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	apperrors "spoke-graph/backend/pkg/errors"
)

// Prompts holds every piece of text sent to the LLM. Zero-valued fields in an
// override file keep their defaults.
type Prompts struct {
	// System is the system message for direct questions
	System string `yaml:"system"`
	// QuerySystem is the system message for query generation
	QuerySystem string `yaml:"query_system"`
	// GraphInfo describes the node and edge structure of the graph
	GraphInfo string `yaml:"graph_info"`
	// EdgeLabels lists the relationship labels stored in the label property of Edges
	EdgeLabels []string `yaml:"edge_labels"`
	// FewShot holds example question/query pairs
	FewShot string `yaml:"few_shot"`
	// FailureMessage prefixes the question after an attempt returned no rows
	FailureMessage string `yaml:"failure_message"`
	// Interpretation is a text/template rendered with .Question and .Results
	Interpretation string `yaml:"interpretation"`
}

const defaultSystem = "You are a helpful biomedical research assistant."

const defaultQuerySystem = `You translate biomedical questions into a single read-only Cypher statement for Neo4j.
Reply with the statement only, optionally inside a cypher code block. Never write to the graph.`

const defaultGraphInfo = `### Contextual Intro
The Neo4j graph represents a biomedical entity network, structured with nodes and edges, each carrying biomedical data types. Nodes are entities like proteins, drugs, diseases, genes. Edges are relationships and interactions. Aim: facilitate complex queries for insights into drug discovery, disease understanding and bio research.

### Node Struct
- Every entity is a node with the label :Nodes.
- IDs: _key (the source id, as a string) and _id ("Nodes/<_key>").
- type: "node".
- labels: list of entity kinds, e.g. ["Protein"], ["Compound"], ["Disease"], ["Gene"].
- properties are flattened with an underscore: properties_identifier ("A0A1B0GTW7"), properties_name, properties_gene, properties_description, properties_org_ncbi_id, properties_synonyms, properties_chembl_id.

### Edge Struct
- Every relationship has the type :Edges and points from the start node to the end node.
- Connects: _from and _to hold the endpoint _id values.
- label: type of relationship, e.g. "INCLUDES_PCiC".
- Edge attributes are flattened the same way: properties_license, properties_source, properties_vestige, properties_forward_degrees.

### Edge Labels
- Filter relationships with e.label, e.g. MATCH (a:Nodes)-[e:Edges {label: 'ASSOCIATES_DaG'}]->(b:Nodes).
- Each label, like INCLUDES_PCiC, signifies a specific interaction or association and guides graph traversal linking entities.

### Aim
By understanding the node and edge structure and labels, construct effective Cypher queries for exploring bio networks, uncovering insights in drug-target interactions, gene-disease associations, etc.`

var defaultEdgeLabels = []string{
	"ADVRESPONSE_TO_mGarC", "ASSOCIATES_DaG", "ASSOCIATES_GaS", "BINDS_CbP", "BINDS_CbPD",
	"CATALYZES_ECcR", "CAUSES_CcSE", "CAUSES_OcD", "CLEAVESTO_PctP", "CONSUMES_RcC",
	"CONTAINS_CcG", "CONTAINS_FcC", "CONTRAINDICATES_CcD", "DECREASEDIN_PdD", "DOWNREGULATES_AdG",
	"DOWNREGULATES_CdG", "DOWNREGULATES_GPdG", "DOWNREGULATES_KGdG", "DOWNREGULATES_OGdG", "ENCODES_GeM",
	"ENCODES_GeP", "EXPRESSEDIN_GeiCT", "EXPRESSEDIN_GeiD", "EXPRESSEDIN_PeCT", "EXPRESSES_AeG",
	"HAS_PhEC", "INCLUDES_OiPW", "INCLUDES_PCiC", "INCREASEDIN_PiD", "INTERACTS_PDiPD",
	"INTERACTS_PiC", "INTERACTS_PiP", "ISA_AiA", "ISA_CTiCT", "ISA_DiD",
	"ISA_ECiEC", "ISA_FiF", "ISA_OiO", "ISA_PWiPW", "LOCALIZES_DlA",
	"MARKER_NEG_GmnD", "MARKER_POS_GmpD", "MEMBEROF_PDmPF", "PARTICIPATES_CpR", "PARTICIPATES_GpBP",
	"PARTICIPATES_GpCC", "PARTICIPATES_GpMF", "PARTICIPATES_GpPW", "PARTICIPATES_GpR", "PARTICIPATES_PpR",
	"PARTOF_ApA", "PARTOF_CTpA", "PARTOF_PDpP", "PARTOF_PpC", "PARTOF_RpPW",
	"PRESENTS_DpS", "PRODUCES_RpC", "REDUCES_SEN_mGrsC", "RESEMBLES_DrD", "RESISTANT_TO_mGrC",
	"RESPONSE_TO_mGrC", "TARGETS_MtG", "TRANSPORTS_PtC", "TREATS_CtD", "UPREGULATES_AuG",
	"UPREGULATES_CuG", "UPREGULATES_GPuG", "UPREGULATES_KGuG", "UPREGULATES_OGuG",
}

const defaultFewShot = `<Example Question 1>Question 1: What are the known targets of the drug Metformin, and what diseases are these targets most commonly associated with?</Example Question 1>
<Example Answer 1>Cypher Statement 1:
MATCH (compound:Nodes)-[edge:Edges]->(related:Nodes)
WHERE 'Compound' IN compound.labels
  AND (compound.properties_identifier CONTAINS 'Metformin'
    OR compound.properties_name CONTAINS 'Metformin'
    OR compound.properties_synonyms CONTAINS 'Metformin')
RETURN compound.properties_identifier AS metformin_identifier,
       compound.properties_name AS metformin_name,
       compound.properties_chembl_id AS metformin_chembl_id,
       related.properties_identifier AS related_identifier,
       related.properties_name AS related_name,
       edge.label AS edge_label</Example Answer 1>

<Example Question 2>Question 2: Which genes are most strongly associated with the development of Type 2 Diabetes, and what pathways do they influence?</Example Question 2>
<Example Answer 2>Cypher Statement 2:
MATCH (disease:Nodes)-[:Edges {label: 'ASSOCIATES_DaG'}]->(gene:Nodes)
WHERE 'Disease' IN disease.labels
  AND 'Gene' IN gene.labels
  AND toLower(disease.properties_name) CONTAINS 'type 2'
  AND toLower(disease.properties_name) CONTAINS 'diabetes'
WITH DISTINCT gene
MATCH (gene)-[:Edges {label: 'PARTICIPATES_GpPW'}]->(pathway:Nodes)
WHERE 'Pathway' IN pathway.labels
RETURN gene._id AS gene_id,
       pathway.properties_identifier AS pathway_identifier,
       pathway.properties_name AS pathway_name</Example Answer 2>`

const defaultFailureMessage = "The prior query failed to return results. " +
	"Please think this through step by step and refine your Cypher statement. " +
	"The original question is as follows:"

const defaultInterpretation = `Based on the following query results, provide a detailed and comprehensive scientific interpretation answering the question: "{{.Question}}" based on the following template.

Introduction:
    Context: Start with the broader context of your research.
        Example: "In the study of hereditary breast cancer, the BRCA1 gene plays a crucial role."
Entity Description:
    Gene Description:
        ID: Reference the unique identifier.
        Label: Use the human-readable name.
        Example: "The gene BRCA1 (ID: genes/12345) is known for its involvement in DNA repair mechanisms."
Relationships:
    Associations:
        Describe the relationships and use both IDs and labels.
        Example: "BRCA1 (ID: genes/12345) has been found to be associated with several diseases. Notably, it shows a strong association with breast cancer (ID: diseases/67890). This association (type: 'gene-disease') is crucial for understanding the genetic basis of the disease."
Detailed Explanation:
    Exploring the Data:
        Dive deeper into the data and explain the significance.
        Example: "The association between BRCA1 and breast cancer (ID: diseases/67890) highlights the gene's role in tumor suppression. Mutations in BRCA1 can lead to a loss of function, contributing to the development of cancer."
Conclusion:
    Summary and Implications:
        Summarize the key points and discuss the implications.
        Example: "Understanding the relationship between BRCA1 (ID: genes/12345) and breast cancer (ID: diseases/67890) is vital for developing targeted therapies. The genetic insights provided by this association can guide personalized treatment approaches."

Query Results: {{.Results}}`

// DefaultPrompts returns the built-in biomedical prompt set
func DefaultPrompts() Prompts {
	labels := make([]string, len(defaultEdgeLabels))
	copy(labels, defaultEdgeLabels)
	return Prompts{
		System:         defaultSystem,
		QuerySystem:    defaultQuerySystem,
		GraphInfo:      defaultGraphInfo,
		EdgeLabels:     labels,
		FewShot:        defaultFewShot,
		FailureMessage: defaultFailureMessage,
		Interpretation: defaultInterpretation,
	}
}

// LoadPrompts reads a YAML override file on top of the defaults.
// An empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return prompts, apperrors.NewConfigValidationFailed("PROMPTS_FILE", err.Error())
	}
	prompts.merge(override)

	if _, err := template.New("interpretation").Parse(prompts.Interpretation); err != nil {
		return prompts, apperrors.NewConfigValidationFailed("PROMPTS_FILE", "interpretation: "+err.Error())
	}
	return prompts, nil
}

func (p *Prompts) merge(o Prompts) {
	setIf := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setIf(&p.System, o.System)
	setIf(&p.QuerySystem, o.QuerySystem)
	setIf(&p.GraphInfo, o.GraphInfo)
	setIf(&p.FewShot, o.FewShot)
	setIf(&p.FailureMessage, o.FailureMessage)
	setIf(&p.Interpretation, o.Interpretation)
	if len(o.EdgeLabels) > 0 {
		p.EdgeLabels = o.EdgeLabels
	}
}

// BasePrompt is appended to the user's question for query generation.
// schema is an optional live summary of the graph and may be empty.
func (p Prompts) BasePrompt(schema string) string {
	var b strings.Builder
	b.WriteString("\n<System Instructions>Answer the above question using the following data model and Cypher query template.</System Instructions>\n\n")
	fmt.Fprintf(&b, "<Graph Description>%s</Graph Description>\n\n", p.GraphInfo)
	b.WriteString("<Edge Label Description>This is a list of the available edge labels in the graph. You can use these to filter edges in your Cypher query.</Edge Label Description>\n")
	fmt.Fprintf(&b, "<Available Edge Labels>%s</Available Edge Labels>\n\n", strings.Join(p.EdgeLabels, "\n"))
	if schema != "" {
		fmt.Fprintf(&b, "<Live Schema>%s</Live Schema>\n\n", schema)
	}
	b.WriteString("<Example Few-Shot Description>These questions and Cypher queries demonstrate how to construct working queries based on natural language questions using the provided node, edge, and edge label information. To adapt them for different scenarios, modify the entity types, filter conditions, and return clauses based on your specific data and question.</Example Few-Shot Description>\n")
	fmt.Fprintf(&b, "<Example Few-Shot>%s</Example Few-Shot>\n", p.FewShot)
	return b.String()
}

// InterpretationPrompt renders the narrative template for a set of result rows
func (p Prompts) InterpretationPrompt(question string, rows []map[string]any) (string, error) {
	tmpl, err := template.New("interpretation").Parse(p.Interpretation)
	if err != nil {
		return "", fmt.Errorf("failed to parse interpretation template: %w", err)
	}

	results, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("failed to encode query results: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Question string
		Results  string
	}{question, string(results)})
	if err != nil {
		return "", fmt.Errorf("failed to render interpretation prompt: %w", err)
	}
	return buf.String(), nil
}
