package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"cdpsnap/pkg/model"
)

// PlaceMarker 在目标页面上给 selector 选中的第一个元素设置随机 marker 属性并返回其值
func (s *Service) PlaceMarker(ctx context.Context, target model.TargetID, selector string) (string, error) {
	marker := uuid.NewString()
	script, err := markScript(s.cfg.Capture.MarkerAttribute, marker, selector)
	if err != nil {
		return "", err
	}
	raw, err := s.evaluateOn(ctx, target, script)
	if err != nil {
		return "", err
	}
	if !gjson.GetBytes(raw, "found").Bool() {
		return "", fmt.Errorf("%w: no element matches %q", model.ErrTargetNotFound, selector)
	}
	return marker, nil
}

// RemoveMarker 移除页面上所有带该 marker 的属性
func (s *Service) RemoveMarker(ctx context.Context, target model.TargetID, marker string) error {
	script, err := unmarkScript(s.cfg.Capture.MarkerAttribute, marker)
	if err != nil {
		return err
	}
	_, err = s.evaluateOn(ctx, target, script)
	return err
}

func (s *Service) evaluateOn(ctx context.Context, target model.TargetID, script string) (json.RawMessage, error) {
	if target == "" {
		t, err := s.firstPage(ctx)
		if err != nil {
			return nil, err
		}
		target = t
	}
	att, err := s.mgr.Attach(ctx, target)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.mgr.Detach(att) }()
	return att.Evaluate(ctx, script)
}

func markScript(attr, marker, selector string) (string, error) {
	args, err := json.Marshal([]string{selector, attr, marker})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(function (a) {
  var el = document.querySelector(a[0]);
  if (!el) { return { found: false }; }
  el.setAttribute(a[1], a[2]);
  return { found: true };
})(%s)`, args), nil
}

func unmarkScript(attr, marker string) (string, error) {
	args, err := json.Marshal([]string{attr, marker})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(function (a) {
  var n = 0;
  document.querySelectorAll("[" + a[0] + "]").forEach(function (el) {
    if (el.getAttribute(a[0]) === a[1]) { el.removeAttribute(a[0]); n++; }
  });
  return { removed: n };
})(%s)`, args), nil
}
