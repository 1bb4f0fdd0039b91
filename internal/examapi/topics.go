package examapi

import (
	"context"
	"net/http"
	"net/url"
)

func (c *Client) distinct(ctx context.Context, op, what string, q url.Values) ([]string, error) {
	var out distinctResponse
	if err := c.do(ctx, op, http.MethodGet, "/question-topics/distinct/"+what, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) DistinctFields(ctx context.Context) ([]string, error) {
	return c.distinct(ctx, "fetch distinct fields", "fields", nil)
}

func (c *Client) DistinctFieldCodes(ctx context.Context) ([]string, error) {
	return c.distinct(ctx, "fetch distinct field codes", "field-codes", nil)
}

func (c *Client) DistinctAreas(ctx context.Context, fieldCode string) ([]string, error) {
	return c.distinct(ctx, "fetch distinct areas", "areas", TopicFilter{FieldCode: fieldCode}.query())
}

func (c *Client) DistinctAreaCodes(ctx context.Context, fieldCode string) ([]string, error) {
	return c.distinct(ctx, "fetch distinct area codes", "area-codes", TopicFilter{FieldCode: fieldCode}.query())
}

func (c *Client) DistinctGeneralTopics(ctx context.Context, fieldCode, areaCode string) ([]string, error) {
	return c.distinct(ctx, "fetch distinct general topics", "general-topics",
		TopicFilter{FieldCode: fieldCode, AreaCode: areaCode}.query())
}

func (c *Client) DistinctSpecificTopics(ctx context.Context, fieldCode, areaCode, generalTopicCode string) ([]string, error) {
	return c.distinct(ctx, "fetch distinct specific topics", "specific-topics",
		TopicFilter{FieldCode: fieldCode, AreaCode: areaCode, GeneralTopicCode: generalTopicCode}.query())
}

// SearchQuestionTopics returns every topic matching f (no paging).
func (c *Client) SearchQuestionTopics(ctx context.Context, f TopicFilter) ([]QuestionTopic, error) {
	q := f.query()
	q.Set("pageSize", "-1")
	if f.SpecificTopic != "" {
		q.Set("search", f.SpecificTopic)
	}
	var out topicListResponse
	if err := c.do(ctx, "search question topics", http.MethodGet, "/question-topics/", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (f TopicFilter) query() url.Values {
	q := url.Values{}
	if f.FieldCode != "" {
		q.Set("field_code", f.FieldCode)
	}
	if f.AreaCode != "" {
		q.Set("area_code", f.AreaCode)
	}
	if f.GeneralTopicCode != "" {
		q.Set("general_topic_code", f.GeneralTopicCode)
	}
	return q
}
