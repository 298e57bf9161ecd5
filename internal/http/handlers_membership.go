package http

import (
	"net/http"
)

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type joinGroupRequest struct {
	InviteCode string `json:"invite_code"`
}

type createGroupResponse struct {
	Group  groupJSON  `json:"group"`
	Member memberJSON `json:"member"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	group, member, err := s.svc.Membership.CreateGroup(r.Context(), uid, sanitizeInput(req.Name), sanitizeInput(req.Description))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createGroupResponse{
		Group:  toGroupJSON(group),
		Member: toMemberJSON(member),
	})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	familyID, err := pathID(r, "familyID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	group, err := s.svc.Membership.GetGroup(r.Context(), uid, familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupJSON(group))
}

func (s *Server) handleRotateInvite(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	familyID, err := pathID(r, "familyID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	group, err := s.svc.Membership.RotateInvite(r.Context(), uid, familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupJSON(group))
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req joinGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	member, err := s.svc.Membership.JoinByInvite(r.Context(), uid, sanitizeInput(req.InviteCode))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMemberJSON(member))
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	familyID, err := pathID(r, "familyID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	members, err := s.svc.Membership.ListMembers(r.Context(), uid, familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberListJSON(members))
}

func (s *Server) handleApproveMember(w http.ResponseWriter, r *http.Request) {
	s.memberTransition(w, r, func(uid, familyID, memberID int64) (any, error) {
		member, err := s.svc.Membership.ApproveMember(r.Context(), uid, familyID, memberID)
		if err != nil {
			return nil, err
		}
		return toMemberJSON(member), nil
	})
}

func (s *Server) handleRejectMember(w http.ResponseWriter, r *http.Request) {
	s.memberTransition(w, r, func(uid, familyID, memberID int64) (any, error) {
		if err := s.svc.Membership.RejectMember(r.Context(), uid, familyID, memberID); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

func (s *Server) handleBlockMember(w http.ResponseWriter, r *http.Request) {
	s.memberTransition(w, r, func(uid, familyID, memberID int64) (any, error) {
		member, err := s.svc.Membership.BlockMember(r.Context(), uid, familyID, memberID)
		if err != nil {
			return nil, err
		}
		return toMemberJSON(member), nil
	})
}

func (s *Server) memberTransition(w http.ResponseWriter, r *http.Request, fn func(uid, familyID, memberID int64) (any, error)) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	familyID, err := pathID(r, "familyID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	memberID, err := pathID(r, "memberID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	body, err := fn(uid, familyID, memberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if body == nil {
		writeJSON(w, http.StatusNoContent, nil)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
